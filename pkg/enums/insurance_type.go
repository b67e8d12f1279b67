package enums

import "slices"

// InsuranceType is the coverage tier a renter picks at booking time.
type InsuranceType string

const (
	InsuranceNone    InsuranceType = "none"
	InsuranceBasic   InsuranceType = "basic"
	InsurancePremium InsuranceType = "premium"
)

var validInsuranceTypes = []InsuranceType{
	InsuranceNone,
	InsuranceBasic,
	InsurancePremium,
}

func (i InsuranceType) String() string {
	return string(i)
}

func (i InsuranceType) IsValid() bool {
	return slices.Contains(validInsuranceTypes, i)
}

// ParseInsuranceType converts raw input into an InsuranceType. Empty input
// means no coverage.
func ParseInsuranceType(value string) (InsuranceType, error) {
	if value == "" {
		return InsuranceNone, nil
	}
	return parseEnum(validInsuranceTypes, value, "insurance type")
}

// DepositType describes how an equipment listing sizes its damage deposit.
type DepositType string

const (
	DepositTypeNone       DepositType = "none"
	DepositTypeFixed      DepositType = "fixed"
	DepositTypePercentage DepositType = "percentage"
)

func (d DepositType) IsValid() bool {
	switch d {
	case DepositTypeNone, DepositTypeFixed, DepositTypePercentage:
		return true
	default:
		return false
	}
}
