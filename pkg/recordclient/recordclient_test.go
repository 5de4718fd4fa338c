package recordclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zetaflow/intentd/pkg/logger"
)

func TestRecordStake(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/stake", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"success":true,"message":"ok"}`))
	}))
	defer server.Close()

	client := New(server.URL+"/", &logger.EmptyLogger{})
	err := client.RecordStake(context.Background(), StakeRecord{
		FileID:        "file-1",
		WalletAddress: "0x1111111111111111111111111111111111111111",
		Amount:        "1.5",
		ContentID:     "0xabc",
	})
	require.NoError(t, err)

	assert.Equal(t, "file-1", received["file_id"])
	assert.Equal(t, "0x1111111111111111111111111111111111111111", received["wallet_address"])
	assert.Equal(t, 1.5, received["amount"])
	assert.Equal(t, "0xabc", received["content_id"])
}

func TestRecordStakeFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		record  StakeRecord
		wantErr string
	}{
		{
			name:    "rejected by api",
			status:  http.StatusOK,
			body:    `{"success":false,"message":"file_id missing"}`,
			record:  StakeRecord{FileID: "f", WalletAddress: "w", Amount: "1", ContentID: "c"},
			wantErr: "record API rejected stake: file_id missing",
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			body:    `boom`,
			record:  StakeRecord{FileID: "f", WalletAddress: "w", Amount: "1", ContentID: "c"},
			wantErr: "unexpected status code: 500",
		},
		{
			name:    "malformed body",
			status:  http.StatusOK,
			body:    `not json`,
			record:  StakeRecord{FileID: "f", WalletAddress: "w", Amount: "1", ContentID: "c"},
			wantErr: "failed to decode response",
		},
		{
			name:    "missing fields",
			status:  http.StatusOK,
			body:    `{"success":true}`,
			record:  StakeRecord{FileID: "f"},
			wantErr: "missing required fields",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			err := New(server.URL, &logger.EmptyLogger{}).RecordStake(context.Background(), tt.record)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFetchStakes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "0xabc", r.URL.Query().Get("wallet_address"))
		_, _ = w.Write([]byte(`{"success":true,"count":2,"stakes":[
			{"file_id":"f2","wallet_address":"0xabc","amount":2,"content_id":"0x2","stake_time":"2025-01-02","filename":"b.txt"},
			{"file_id":"f1","wallet_address":"0xabc","amount":0.5,"content_id":"0x1","stake_time":"2025-01-01"}
		]}`))
	}))
	defer server.Close()

	stakes, err := New(server.URL, &logger.EmptyLogger{}).FetchStakes(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Len(t, stakes, 2)
	assert.Equal(t, "f2", stakes[0].FileID)
	assert.Equal(t, json.Number("2"), stakes[0].Amount)
	assert.Equal(t, "b.txt", stakes[0].Filename)
	assert.Equal(t, json.Number("0.5"), stakes[1].Amount)
}

func TestDisabledClient(t *testing.T) {
	client := New("", &logger.EmptyLogger{})
	assert.False(t, client.Enabled())
	assert.NoError(t, client.RecordStake(context.Background(), StakeRecord{}))

	stakes, err := client.FetchStakes(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Empty(t, stakes)
}
