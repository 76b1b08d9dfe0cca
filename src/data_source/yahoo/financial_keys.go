package yahoo

import (
	"strings"
	"time"

	"yfinance-observer/src/helpers"
)

// financialsEpoch is the fixed start of every timeseries window.
var financialsEpoch = time.Date(2016, 12, 31, 0, 0, 0, 0, time.UTC)

type Statement string

const (
	StatementIncome       Statement = "INCOME"
	StatementBalanceSheet Statement = "BALANCE_SHEET"
	StatementCashFlow     Statement = "CASH_FLOW"
)

func ParseStatement(s string) (Statement, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")) {
	case "INCOME", "FINANCIALS":
		return StatementIncome, nil
	case "BALANCE_SHEET", "BALANCE":
		return StatementBalanceSheet, nil
	case "CASH_FLOW", "CASHFLOW":
		return StatementCashFlow, nil
	}
	return "", helpers.NewIllegalArgumentError("unknown statement %q", s)
}

type Timescale string

const (
	TimescaleAnnual    Timescale = "annual"
	TimescaleQuarterly Timescale = "quarterly"
	TimescaleTrailing  Timescale = "trailing"
)

func (t Timescale) valid() bool {
	return t == TimescaleAnnual || t == TimescaleQuarterly || t == TimescaleTrailing
}

func ParseTimescale(s string) (Timescale, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "annual", "yearly":
		return TimescaleAnnual, nil
	case "quarterly":
		return TimescaleQuarterly, nil
	case "trailing":
		return TimescaleTrailing, nil
	}
	return "", helpers.NewIllegalArgumentError("unknown timescale %q", s)
}

// -----------------------------------------------------------------------------
// Series keys per statement. The request asks for <timescale><Key>; the
// summary stores each series under Key.
// -----------------------------------------------------------------------------

var incomeKeys = []string{
	"TotalRevenue",
	"OperatingRevenue",
	"CostOfRevenue",
	"GrossProfit",
	"OperatingExpense",
	"SellingGeneralAndAdministration",
	"ResearchAndDevelopment",
	"OperatingIncome",
	"NetNonOperatingInterestIncomeExpense",
	"InterestIncome",
	"InterestExpense",
	"OtherIncomeExpense",
	"PretaxIncome",
	"TaxProvision",
	"NetIncome",
	"NetIncomeCommonStockholders",
	"DilutedNIAvailtoComStockholders",
	"BasicEPS",
	"DilutedEPS",
	"BasicAverageShares",
	"DilutedAverageShares",
	"TotalExpenses",
	"EBIT",
	"EBITDA",
	"NormalizedIncome",
	"NormalizedEBITDA",
	"ReconciledCostOfRevenue",
	"ReconciledDepreciation",
	"TaxRateForCalcs",
}

var balanceSheetKeys = []string{
	"TotalAssets",
	"CurrentAssets",
	"CashAndCashEquivalents",
	"CashCashEquivalentsAndShortTermInvestments",
	"AccountsReceivable",
	"Inventory",
	"TotalNonCurrentAssets",
	"NetPPE",
	"GoodwillAndOtherIntangibleAssets",
	"TotalLiabilitiesNetMinorityInterest",
	"CurrentLiabilities",
	"AccountsPayable",
	"CurrentDebt",
	"LongTermDebt",
	"TotalDebt",
	"NetDebt",
	"TotalNonCurrentLiabilitiesNetMinorityInterest",
	"StockholdersEquity",
	"CommonStockEquity",
	"RetainedEarnings",
	"TotalEquityGrossMinorityInterest",
	"TotalCapitalization",
	"WorkingCapital",
	"InvestedCapital",
	"TangibleBookValue",
	"OrdinarySharesNumber",
	"ShareIssued",
	"TreasurySharesNumber",
}

var cashFlowKeys = []string{
	"OperatingCashFlow",
	"CashFlowFromContinuingOperatingActivities",
	"NetIncomeFromContinuingOperations",
	"DepreciationAndAmortization",
	"StockBasedCompensation",
	"ChangeInWorkingCapital",
	"InvestingCashFlow",
	"CapitalExpenditure",
	"NetBusinessPurchaseAndSale",
	"NetInvestmentPurchaseAndSale",
	"FinancingCashFlow",
	"NetIssuancePaymentsOfDebt",
	"RepurchaseOfCapitalStock",
	"CashDividendsPaid",
	"CommonStockIssuance",
	"EndCashPosition",
	"BeginningCashPosition",
	"ChangesInCash",
	"FreeCashFlow",
	"IncomeTaxPaidSupplementalData",
	"InterestPaidSupplementalData",
}

var statementKeys = map[Statement][]string{
	StatementIncome:       incomeKeys,
	StatementBalanceSheet: balanceSheetKeys,
	StatementCashFlow:     cashFlowKeys,
}

// StatementKeys returns the series names requested for s.
func StatementKeys(s Statement) []string {
	return append([]string(nil), statementKeys[s]...)
}
