// Package amount converts user-facing decimal quantities into on-chain base units.
package amount

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/zetaflow/intentd/pkg/execerr"
)

// NativeDecimals is the smallest-unit precision of ZETA and WZETA.
const NativeDecimals = 18

// maxExponent bounds exponential notation so a hostile "1e999999999" cannot allocate unbounded memory.
const maxExponent = 4096

var numberPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE]([+-]?\d+))?$`)

// Normalize canonicalizes raw into a plain fixed-point decimal string with at most
// 18 fractional digits, no exponent marker and no trailing fractional zeros.
func Normalize(raw string) (string, error) {
	value, err := parse(raw)
	if err != nil {
		return "", err
	}
	return trimZeros(value.FloatString(NativeDecimals)), nil
}

// ParseUnits normalizes raw and scales it to base units with the given decimals.
func ParseUnits(raw string, decimals int) (*big.Int, error) {
	value, err := parse(raw)
	if err != nil {
		return nil, err
	}
	if value.Sign() < 0 {
		return nil, execerr.New(execerr.KindInvalidAmount, "amount %q is negative", raw)
	}

	// round through the canonical string so base units always match Normalize
	canonical, _ := new(big.Rat).SetString(value.FloatString(decimals))
	scaled := new(big.Rat).Mul(canonical, new(big.Rat).SetInt(pow10(decimals)))
	if !scaled.IsInt() {
		return nil, execerr.New(execerr.KindInvalidAmount, "amount %q exceeds %d decimals", raw, decimals)
	}
	return new(big.Int).Set(scaled.Num()), nil
}

// FormatUnits renders base units as a trimmed decimal string.
func FormatUnits(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(value, pow10(decimals))
	return trimZeros(r.FloatString(decimals))
}

// ToWei is ParseUnits with NativeDecimals.
func ToWei(raw string) (*big.Int, error) {
	return ParseUnits(raw, NativeDecimals)
}

// FromWei is FormatUnits with NativeDecimals.
func FromWei(value *big.Int) string {
	return FormatUnits(value, NativeDecimals)
}

func parse(raw string) (*big.Rat, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, execerr.New(execerr.KindInvalidAmount, "amount is empty")
	}
	match := numberPattern.FindStringSubmatch(s)
	if match == nil {
		return nil, execerr.New(execerr.KindInvalidAmount, "amount %q is not a finite number", raw)
	}
	if exp := match[3]; exp != "" {
		n, err := strconv.Atoi(exp)
		if err != nil || n > maxExponent || n < -maxExponent {
			return nil, execerr.New(execerr.KindInvalidAmount, "amount %q exponent out of range", raw)
		}
	}
	mantissa := match[1]
	if strings.HasPrefix(mantissa, ".") {
		mantissa = "0" + mantissa
	}
	mantissa = strings.TrimSuffix(mantissa, ".")
	if strings.HasPrefix(s, "-") {
		mantissa = "-" + mantissa
	}
	value, ok := new(big.Rat).SetString(mantissa + match[2])
	if !ok {
		return nil, execerr.New(execerr.KindInvalidAmount, "amount %q is not a finite number", raw)
	}
	return value, nil
}

func trimZeros(s string) string {
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// MustWei parses a decimal constant, panicking on malformed input. Intended for package-level defaults.
func MustWei(raw string) *big.Int {
	v, err := ToWei(raw)
	if err != nil {
		panic(fmt.Sprintf("amount: invalid constant %q: %v", raw, err))
	}
	return v
}
