package model

// LineItemRow mirrors one flat spreadsheet row: one line item of one claim,
// with the claim-level columns repeated on every row. Parquet tags cover the
// columnar row dumps; the CSV reader maps headers through the same
// normalized attribute names.
type LineItemRow struct {
	ClaimNumber     string `parquet:"claim_number,optional" json:"claimNumber"`
	MemberNumber    string `parquet:"member_number,optional" json:"memberNumber"`
	FullName        string `parquet:"full_name,optional" json:"fullName"`
	Company         string `parquet:"company,optional" json:"company"`
	Gender          string `parquet:"gender,optional" json:"gender"`
	DateOfBirth     string `parquet:"date_of_birth,optional" json:"dateOfBirth"`
	MemberPlan      string `parquet:"member_plan,optional" json:"memberPlan"`
	TotalClaimed    string `parquet:"total_claimed,optional" json:"totalClaimed"`
	Status          string `parquet:"status,optional" json:"status"`
	ServiceProvider string `parquet:"service_provider,optional" json:"serviceProvider"`
	TypeOfVisit     string `parquet:"type_of_visit,optional" json:"typeOfVisit"`

	DateOfConsultation string `parquet:"date_of_consultation,optional" json:"dateOfConsultation"`
	DateOfAdmission    string `parquet:"date_of_admission,optional" json:"dateOfAdmission"`
	DateOfDischarge    string `parquet:"date_of_discharge,optional" json:"dateOfDischarge"`
	DateAdded          string `parquet:"date_added,optional" json:"dateAdded"`
	AuditedBy          string `parquet:"audited_by,optional" json:"auditedBy"`

	Item             string `parquet:"item,optional" json:"item"`
	ItemType         string `parquet:"item_type,optional" json:"itemType"`
	Quantity         string `parquet:"quantity,optional" json:"quantity"`
	Cost             string `parquet:"cost,optional" json:"cost"`
	Total            string `parquet:"total,optional" json:"total"`
	Awarded          string `parquet:"awarded,optional" json:"awarded"`
	Rejected         string `parquet:"rejected,optional" json:"rejected"`
	RejectionReasons string `parquet:"rejection_reasons,optional" json:"rejectionReasons"`
	QuantityApproved string `parquet:"quantity_approved,optional" json:"quantityApproved"`

	Diagnosis string `parquet:"diagnosis,optional" json:"diagnosis"`
}

// Attr returns the row's value for a normalized attribute name, mirroring
// how spreadsheet headers address columns. Unknown attributes return "".
func (r *LineItemRow) Attr(name string) string {
	switch name {
	case "claimNumber":
		return r.ClaimNumber
	case "memberNumber":
		return r.MemberNumber
	case "fullName":
		return r.FullName
	case "company":
		return r.Company
	case "gender":
		return r.Gender
	case "dateOfBirth":
		return r.DateOfBirth
	case "memberPlan":
		return r.MemberPlan
	case "totalClaimed":
		return r.TotalClaimed
	case "status":
		return r.Status
	case "serviceProvider":
		return r.ServiceProvider
	case "typeOfVisit":
		return r.TypeOfVisit
	case "dateOfConsultation":
		return r.DateOfConsultation
	case "dateOfAdmission":
		return r.DateOfAdmission
	case "dateOfDischarge":
		return r.DateOfDischarge
	case "dateAdded":
		return r.DateAdded
	case "auditedBy":
		return r.AuditedBy
	case "item":
		return r.Item
	case "itemType":
		return r.ItemType
	case "quantity":
		return r.Quantity
	case "cost":
		return r.Cost
	case "total":
		return r.Total
	case "awarded":
		return r.Awarded
	case "rejected":
		return r.Rejected
	case "rejectionReasons":
		return r.RejectionReasons
	case "quantityApproved":
		return r.QuantityApproved
	case "diagnosis":
		return r.Diagnosis
	}
	return ""
}

// SetAttr assigns the row's field for a normalized attribute name. Unknown
// attributes are ignored, matching how extra spreadsheet columns are
// ignored.
func (r *LineItemRow) SetAttr(name, value string) {
	switch name {
	case "claimNumber":
		r.ClaimNumber = value
	case "memberNumber":
		r.MemberNumber = value
	case "fullName":
		r.FullName = value
	case "company":
		r.Company = value
	case "gender":
		r.Gender = value
	case "dateOfBirth":
		r.DateOfBirth = value
	case "memberPlan":
		r.MemberPlan = value
	case "totalClaimed":
		r.TotalClaimed = value
	case "status":
		r.Status = value
	case "serviceProvider":
		r.ServiceProvider = value
	case "typeOfVisit":
		r.TypeOfVisit = value
	case "dateOfConsultation":
		r.DateOfConsultation = value
	case "dateOfAdmission":
		r.DateOfAdmission = value
	case "dateOfDischarge":
		r.DateOfDischarge = value
	case "dateAdded":
		r.DateAdded = value
	case "auditedBy":
		r.AuditedBy = value
	case "item":
		r.Item = value
	case "itemType":
		r.ItemType = value
	case "quantity":
		r.Quantity = value
	case "cost":
		r.Cost = value
	case "total":
		r.Total = value
	case "awarded":
		r.Awarded = value
	case "rejected":
		r.Rejected = value
	case "rejectionReasons":
		r.RejectionReasons = value
	case "quantityApproved":
		r.QuantityApproved = value
	case "diagnosis":
		r.Diagnosis = value
	}
}
