package config

// ScanCollectPolicy decides how scan-and-collect treats the payment state of the parcel's invoice.
//
// Set via env:
// - SCAN_COLLECT_POLICY=skip_payment_check (default) | notify_unsettled | require_settled
func ScanCollectPolicy() string {
	switch p := GetSettings().ScanCollectPolicy; p {
	case "notify_unsettled", "require_settled":
		return p
	default:
		return "skip_payment_check"
	}
}

// InvoicedParcelDeletePolicy decides whether a parcel that is already on an invoice may be deleted.
//
// Set via env:
// - INVOICED_PARCEL_DELETE_POLICY=forbid (default) | detach
func InvoicedParcelDeletePolicy() string {
	if GetSettings().InvoicedParcelDeletePolicy == "detach" {
		return "detach"
	}
	return "forbid"
}
