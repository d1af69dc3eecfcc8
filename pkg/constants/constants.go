// Package constants provides shared constants for the mortgage-tracker application.
package constants

// DateLayout is the calendar date format expected in config files and API
// payloads and is also the output date format.
const DateLayout = "2006-01-02"

// Financial constants
const (
	// MonthsPerYear is the number of months in a year
	MonthsPerYear = 12

	// DecimalPrecision is the precision for currency rounding (2 decimal places)
	DecimalPrecision = 100

	// BalanceEpsilon is the residual balance below which a loan is considered
	// fully repaid
	BalanceEpsilon = 0.01

	// CurrencyTolerance is the tolerance for currency comparisons (1 cent)
	CurrencyTolerance = 0.01

	// PercentageMultiplier is used for percentage conversions
	PercentageMultiplier = 100.0
)

// Early payoff strategies
const (
	// StrategyReducePayment keeps the remaining term and lowers the monthly quota
	StrategyReducePayment = "reduce_payment"

	// StrategyReduceTerm keeps the monthly quota and shortens the remaining term
	StrategyReduceTerm = "reduce_term"
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"

	// OutputFormatPDF is the PDF report output format
	OutputFormatPDF = "pdf"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address for the API
	DefaultServerAddress = ":8080"

	// DefaultRequestLimit is the default number of API requests allowed per
	// client per refill window
	DefaultRequestLimit = 60
)
