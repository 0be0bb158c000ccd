package models

import "fmt"

// Variant identifies one opener prompt strategy. Variants are ordered: retry
// always moves to the next unused variant in catalog order.
type Variant int

const (
	VariantDirectReference Variant = iota + 1
	VariantProblemFocused
	VariantComplimentInsight
	VariantQuestionBased
	VariantSharedInterest
	VariantTrendConnection
	VariantSpecificQuote
	VariantFutureFocused
	VariantContrarian
	VariantMinimalist
)

var variantKeys = map[Variant]string{
	VariantDirectReference:   "direct_reference",
	VariantProblemFocused:    "problem_focused",
	VariantComplimentInsight: "compliment_insight",
	VariantQuestionBased:     "question_based",
	VariantSharedInterest:    "shared_interest",
	VariantTrendConnection:   "trend_connection",
	VariantSpecificQuote:     "specific_quote",
	VariantFutureFocused:     "future_focused",
	VariantContrarian:        "contrarian",
	VariantMinimalist:        "minimalist",
}

// Key returns the stable snake_case identifier used in artifacts and flags.
func (v Variant) Key() string {
	if k, ok := variantKeys[v]; ok {
		return k
	}
	return fmt.Sprintf("variant_%d", int(v))
}

func (v Variant) String() string { return v.Key() }

// Valid reports whether v is one of the catalog variants.
func (v Variant) Valid() bool {
	_, ok := variantKeys[v]
	return ok
}

// Variants returns all variants in catalog order.
func Variants() []Variant {
	out := make([]Variant, 0, len(variantKeys))
	for v := VariantDirectReference; v <= VariantMinimalist; v++ {
		out = append(out, v)
	}
	return out
}

// VariantFromKey resolves a snake_case identifier back to its variant.
func VariantFromKey(key string) (Variant, error) {
	for v, k := range variantKeys {
		if k == key {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown variant %q", key)
}
