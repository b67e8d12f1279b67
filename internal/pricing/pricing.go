// Package pricing computes server-side booking quotes. All arithmetic uses
// decimals; every component is rounded to cents before the total is summed.
package pricing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentalhub-backend/pkg/errors"
)

const (
	MinRentalDays = 1
	MaxRentalDays = 30
)

var (
	ServiceFeeRate       = decimal.RequireFromString("0.05")
	BasicInsuranceRate   = decimal.RequireFromString("0.05")
	PremiumInsuranceRate = decimal.RequireFromString("0.10")
	ClientTolerance      = decimal.RequireFromString("0.02")
	oneHundred           = decimal.NewFromInt(100)
	hoursPerDay          = 24 * time.Hour
)

// Input carries everything a quote depends on.
type Input struct {
	DailyRate         decimal.Decimal
	Start             time.Time
	End               time.Time
	Insurance         enums.InsuranceType
	DepositType       enums.DepositType
	DepositAmount     decimal.Decimal
	DepositPercentage decimal.Decimal
}

// Quote is the cent-rounded breakdown of a booking's price.
type Quote struct {
	Days          int                 `json:"days"`
	DailyRate     decimal.Decimal     `json:"daily_rate"`
	Subtotal      decimal.Decimal     `json:"subtotal"`
	ServiceFee    decimal.Decimal     `json:"service_fee"`
	Insurance     enums.InsuranceType `json:"insurance_type"`
	InsuranceCost decimal.Decimal     `json:"insurance_cost"`
	Deposit       decimal.Decimal     `json:"deposit"`
	Total         decimal.Decimal     `json:"total"`
}

// InputFor builds a pricing input from a listing and a booking.
func InputFor(equipment models.Equipment, booking models.BookingRequest) Input {
	return Input{
		DailyRate:         equipment.DailyRate,
		Start:             booking.Start(),
		End:               booking.End(),
		Insurance:         booking.InsuranceType,
		DepositType:       equipment.DepositType,
		DepositAmount:     equipment.DepositAmount,
		DepositPercentage: equipment.DepositPercentage,
	}
}

// RentalDays returns ceil((end-start)/24h) with a same-day rental counting
// as one day. Spans outside 1..30 days are rejected.
func RentalDays(start, end time.Time) (int, error) {
	if end.Before(start) {
		return 0, pkgerrors.New(pkgerrors.CodePrecondition, "end date precedes start date").WithDetails(map[string]any{
			"requirement": "start_date <= end_date",
		})
	}
	span := end.Sub(start)
	days := int(span / hoursPerDay)
	if span%hoursPerDay != 0 {
		days++
	}
	if days < MinRentalDays {
		days = MinRentalDays
	}
	if days > MaxRentalDays {
		return 0, pkgerrors.New(pkgerrors.CodePrecondition, fmt.Sprintf("rental span of %d days exceeds %d", days, MaxRentalDays)).WithDetails(map[string]any{
			"requirement": "rental span between 1 and 30 days",
			"days":        days,
		})
	}
	return days, nil
}

// InsuranceRate returns the share of the rental subtotal charged for cover.
func InsuranceRate(tier enums.InsuranceType) (decimal.Decimal, error) {
	switch tier {
	case enums.InsuranceNone, "":
		return decimal.Zero, nil
	case enums.InsuranceBasic:
		return BasicInsuranceRate, nil
	case enums.InsurancePremium:
		return PremiumInsuranceRate, nil
	default:
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown insurance type %q", tier))
	}
}

// Calculate prices a booking.
func Calculate(in Input) (Quote, error) {
	if !in.DailyRate.IsPositive() {
		return Quote{}, pkgerrors.New(pkgerrors.CodeValidation, "daily rate must be positive")
	}
	days, err := RentalDays(in.Start, in.End)
	if err != nil {
		return Quote{}, err
	}
	insRate, err := InsuranceRate(in.Insurance)
	if err != nil {
		return Quote{}, err
	}

	rental := in.DailyRate.Mul(decimal.NewFromInt(int64(days)))
	subtotal := cents(rental)
	fee := cents(rental.Mul(ServiceFeeRate))
	insurance := cents(rental.Mul(insRate))
	deposit := cents(depositFor(in))

	tier := in.Insurance
	if tier == "" {
		tier = enums.InsuranceNone
	}
	return Quote{
		Days:          days,
		DailyRate:     in.DailyRate,
		Subtotal:      subtotal,
		ServiceFee:    fee,
		Insurance:     tier,
		InsuranceCost: insurance,
		Deposit:       deposit,
		Total:         subtotal.Add(fee).Add(insurance).Add(deposit),
	}, nil
}

func depositFor(in Input) decimal.Decimal {
	switch in.DepositType {
	case enums.DepositTypeFixed:
		return in.DepositAmount
	case enums.DepositTypePercentage:
		return in.DailyRate.Mul(in.DepositPercentage).Div(oneHundred)
	default:
		return decimal.Zero
	}
}

// VerifyClientTotal accepts a client-submitted total within two cents of
// the server figure.
func VerifyClientTotal(client, server decimal.Decimal) error {
	if client.Sub(server).Abs().LessThanOrEqual(ClientTolerance) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodePricingMismatch, "submitted total does not match server pricing").WithDetails(map[string]any{
		"client_total": client.StringFixed(2),
		"server_total": server.StringFixed(2),
	})
}

// ToMinorUnits converts a decimal amount into integer cents for the
// processor.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return cents(amount).Mul(oneHundred).IntPart()
}

// FromMinorUnits converts processor cents back to a decimal amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

func cents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
