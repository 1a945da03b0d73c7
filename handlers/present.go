package handlers

import (
	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"bitbucket.org/mmdatafocus/logistics_backend/services"
	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	"github.com/shopspring/decimal"
)

// Money leaves the API with two decimals. Outer fields shadow the embedded ones.

func money(d decimal.Decimal) string {
	return utils.FormatMoney(d)
}

func moneyPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := money(*d)
	return &s
}

type lineItemResponse struct {
	models.InvoiceLineItem
	Rate   string `json:"rate"`
	Amount string `json:"amount"`
}

type adjustmentResponse struct {
	models.InvoiceAdjustment
	Amount string `json:"amount"`
}

type invoiceResponse struct {
	*models.Invoice
	Subtotal         string               `json:"subtotal"`
	AdjustmentsTotal string               `json:"adjustments_total"`
	Total            string               `json:"total"`
	TotalOverride    *string              `json:"total_override"`
	PaidTotal        string               `json:"paid_total"`
	Outstanding      string               `json:"outstanding"`
	LineItems        []lineItemResponse   `json:"line_items"`
	Adjustments      []adjustmentResponse `json:"adjustments"`
}

func presentInvoice(v *services.InvoiceView) invoiceResponse {
	resp := invoiceResponse{
		Invoice:          v.Invoice,
		Subtotal:         money(v.Subtotal),
		AdjustmentsTotal: money(v.AdjustmentsTotal),
		Total:            money(v.Total),
		TotalOverride:    moneyPtr(v.TotalOverride),
		PaidTotal:        money(v.PaidTotal),
		Outstanding:      money(v.Outstanding),
		LineItems:        make([]lineItemResponse, 0, len(v.LineItems)),
		Adjustments:      make([]adjustmentResponse, 0, len(v.Adjustments)),
	}
	for _, item := range v.LineItems {
		resp.LineItems = append(resp.LineItems, lineItemResponse{InvoiceLineItem: item, Rate: money(item.Rate), Amount: money(item.Amount)})
	}
	for _, adj := range v.Adjustments {
		resp.Adjustments = append(resp.Adjustments, adjustmentResponse{InvoiceAdjustment: adj, Amount: money(adj.Amount)})
	}
	return resp
}

type paymentResultResponse struct {
	PaymentId    string `json:"payment_id"`
	NewPaidTotal string `json:"new_paid_total"`
	Outstanding  string `json:"outstanding"`
	FullyPaid    bool   `json:"fully_paid"`
}

func presentPayment(r *models.PaymentResult) paymentResultResponse {
	return paymentResultResponse{
		PaymentId:    r.PaymentId,
		NewPaidTotal: money(r.NewPaidTotal),
		Outstanding:  money(r.Outstanding),
		FullyPaid:    r.FullyPaid,
	}
}

type expenseResponse struct {
	*models.TripExpense
	Amount string `json:"amount"`
}

func presentExpense(e *models.TripExpense) expenseResponse {
	return expenseResponse{TripExpense: e, Amount: money(e.Amount)}
}

type tripDetailResponse struct {
	*models.Trip
	Parcels      []*models.Parcel  `json:"parcels"`
	Expenses     []expenseResponse `json:"expenses"`
	ExpenseTotal string            `json:"expense_total"`
}

func presentTrip(d *services.TripDetail) tripDetailResponse {
	resp := tripDetailResponse{
		Trip:         d.Trip,
		Parcels:      d.Parcels,
		Expenses:     make([]expenseResponse, 0, len(d.Expenses)),
		ExpenseTotal: money(d.ExpenseTotal),
	}
	for _, e := range d.Expenses {
		resp.Expenses = append(resp.Expenses, presentExpense(e))
	}
	return resp
}

type collectionCheckResponse struct {
	*services.CollectionCheck
	Outstanding *string `json:"outstanding,omitempty"`
}

func presentCheck(c *services.CollectionCheck) collectionCheckResponse {
	return collectionCheckResponse{CollectionCheck: c, Outstanding: moneyPtr(c.Outstanding)}
}

type clientResponse struct {
	*models.Client
	DefaultRate string `json:"default_rate"`
}

func presentClient(c *models.Client) clientResponse {
	return clientResponse{Client: c, DefaultRate: money(c.DefaultRate)}
}
