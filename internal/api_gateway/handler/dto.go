package handler

// CreateEscrowRequest represents a request to create a new escrow account
type CreateEscrowRequest struct {
	ProjectID           string `json:"project_id" binding:"required,uuid"`
	TotalProjectValue   int64  `json:"total_project_value" binding:"required,gt=0"`
	RetentionPercentage int    `json:"retention_percentage" binding:"min=0,max=100"`
	ClientID            string `json:"client_id" binding:"required,uuid"`
	ContractorID        string `json:"contractor_id" binding:"required,uuid"`
}

// FundEscrowRequest represents a request to deposit client funds into escrow
type FundEscrowRequest struct {
	Amount int64  `json:"amount" binding:"required,gt=0"`
	Method string `json:"method" binding:"required,oneof=ACH WIRE CARD"`
}

// EscrowResponse represents an escrow account in API responses
type EscrowResponse struct {
	ID                  string `json:"id"`
	ProjectID           string `json:"project_id"`
	ClientID            string `json:"client_id"`
	ContractorID        string `json:"contractor_id"`
	TotalProjectValue   int64  `json:"total_project_value"`
	EscrowBalance       int64  `json:"escrow_balance"`
	TotalDeposited      int64  `json:"total_deposited"`
	TotalPaid           int64  `json:"total_paid"`
	RetentionPercentage int    `json:"retention_percentage"`
	RetentionAmount     int64  `json:"retention_amount"`
	RetentionReleased   bool   `json:"retention_released"`
	Status              string `json:"status"`
	CreatedAt           string `json:"created_at"`
	UpdatedAt           string `json:"updated_at"`
}

// LedgerEntryResponse represents a ledger entry in API responses
type LedgerEntryResponse struct {
	ID                    string `json:"id"`
	EscrowID              string `json:"escrow_id"`
	RecipientID           string `json:"recipient_id"`
	Amount                int64  `json:"amount"`
	PaymentType           string `json:"payment_type"`
	Method                string `json:"method,omitempty"`
	ExternalTransactionID string `json:"external_transaction_id"`
	Status                string `json:"status"`
	CreatedAt             string `json:"created_at"`
}

// FundEscrowResponse pairs the updated escrow with the deposit ledger entry
type FundEscrowResponse struct {
	Escrow EscrowResponse      `json:"escrow"`
	Entry  LedgerEntryResponse `json:"entry"`
}

// CreateTaskPaymentRequest represents a request to create a task payment unit
type CreateTaskPaymentRequest struct {
	TaskID                 string   `json:"task_id" binding:"required,uuid"`
	PaymentAmount          int64    `json:"payment_amount" binding:"required,gt=0"`
	CompletionRequirements []string `json:"completion_requirements"`
	VerificationCriteria   []string `json:"verification_criteria"`
	ApprovalRequired       bool     `json:"approval_required"`
	PhotosRequired         bool     `json:"photos_required"`
	ExpectedCompletionDate string   `json:"expected_completion_date,omitempty"`
}

// CreateMilestonePaymentRequest represents a request to create a milestone payment unit
type CreateMilestonePaymentRequest struct {
	MilestoneName     string   `json:"milestone_name" binding:"required"`
	PaymentAmount     int64    `json:"payment_amount" binding:"required,gt=0"`
	PaymentPercentage int      `json:"payment_percentage" binding:"required,min=1,max=100"`
	Deliverables      []string `json:"deliverables"`
	DueDate           string   `json:"due_date,omitempty"`
	ApprovalRequired  bool     `json:"approval_required"`
}

// VerifyCompletionRequest represents completion evidence for a payment unit
type VerifyCompletionRequest struct {
	QualityScore int      `json:"quality_score" binding:"min=0,max=100"`
	PhotoRefs    []string `json:"photo_refs"`
	Notes        string   `json:"notes"`
}

// ApprovePaymentRequest represents a client approval of a verified unit
type ApprovePaymentRequest struct {
	ApprovedBy string `json:"approved_by" binding:"required"`
}

// PaymentUnitResponse represents a payment unit in API responses
type PaymentUnitResponse struct {
	ID                     string   `json:"id"`
	EscrowID               string   `json:"escrow_id"`
	ContractorID           string   `json:"contractor_id"`
	UnitType               string   `json:"unit_type"`
	Status                 string   `json:"status"`
	PaymentAmount          int64    `json:"payment_amount"`
	TaskID                 string   `json:"task_id,omitempty"`
	CompletionRequirements []string `json:"completion_requirements,omitempty"`
	VerificationCriteria   []string `json:"verification_criteria,omitempty"`
	ApprovalRequired       bool     `json:"approval_required"`
	PhotosRequired         bool     `json:"photos_required"`
	MilestoneName          string   `json:"milestone_name,omitempty"`
	PaymentPercentage      int      `json:"payment_percentage,omitempty"`
	Deliverables           []string `json:"deliverables,omitempty"`
	DueDate                string   `json:"due_date,omitempty"`
	QualityScore           *int     `json:"quality_score,omitempty"`
	VerificationNotes      string   `json:"verification_notes,omitempty"`
	PhotoRefs              []string `json:"photo_refs,omitempty"`
	ApprovedBy             string   `json:"approved_by,omitempty"`
	PaidDate               string   `json:"paid_date,omitempty"`
	PaymentTransactionID   string   `json:"payment_transaction_id,omitempty"`
	ExpectedCompletionDate string   `json:"expected_completion_date,omitempty"`
	CreatedAt              string   `json:"created_at"`
	UpdatedAt              string   `json:"updated_at"`
}

// PaymentListResponse represents a list of payment units in API responses
type PaymentListResponse struct {
	Payments []PaymentUnitResponse `json:"payments"`
}

// ApplyChangeOrderRequest represents a contract amendment request
type ApplyChangeOrderRequest struct {
	AmountChange       int64  `json:"amount_change" binding:"required"`
	ScheduleImpactDays int    `json:"schedule_impact_days"`
	Reason             string `json:"reason" binding:"required"`
	ApprovedBy         string `json:"approved_by" binding:"required"`
}

// ChangeOrderResponse represents a change order in API responses
type ChangeOrderResponse struct {
	ID                 string `json:"id"`
	EscrowID           string `json:"escrow_id"`
	ChangeOrderNumber  int    `json:"change_order_number"`
	AmountChange       int64  `json:"amount_change"`
	ScheduleImpactDays int    `json:"schedule_impact_days"`
	Reason             string `json:"reason"`
	ApprovedBy         string `json:"approved_by"`
	PriorTotalValue    int64  `json:"prior_total_value"`
	NewTotalValue      int64  `json:"new_total_value"`
	CreatedAt          string `json:"created_at"`
}

// ChangeOrderListResponse represents a list of change orders in API responses
type ChangeOrderListResponse struct {
	ChangeOrders []ChangeOrderResponse `json:"change_orders"`
}

// OpenDisputeRequest represents a request to open a payment dispute
type OpenDisputeRequest struct {
	PaymentUnitID string `json:"payment_unit_id,omitempty" binding:"omitempty,uuid"`
	DisputeAmount int64  `json:"dispute_amount" binding:"required,gt=0"`
	SubmittedBy   string `json:"submitted_by" binding:"required,uuid"`
	RespondentID  string `json:"respondent_id" binding:"required,uuid"`
}

// RequestMediationRequest represents an escalation to mediation
type RequestMediationRequest struct {
	Mediator string `json:"mediator,omitempty"`
}

// ResolveDisputeRequest represents a dispute resolution decision. An empty
// prevailing party defaults to the submitter.
type ResolveDisputeRequest struct {
	Resolution        string `json:"resolution" binding:"required"`
	ResolutionAmount  int64  `json:"resolution_amount" binding:"min=0"`
	PrevailingPartyID string `json:"prevailing_party_id,omitempty"`
	ResolvedBy        string `json:"resolved_by" binding:"required"`
}

// DisputeResponse represents a dispute in API responses
type DisputeResponse struct {
	ID                string `json:"id"`
	EscrowID          string `json:"escrow_id"`
	PaymentUnitID     string `json:"payment_unit_id,omitempty"`
	DisputeAmount     int64  `json:"dispute_amount"`
	SubmittedBy       string `json:"submitted_by"`
	RespondentID      string `json:"respondent_id"`
	Status            string `json:"status"`
	Mediator          string `json:"mediator,omitempty"`
	MediationDate     string `json:"mediation_date,omitempty"`
	Resolution        string `json:"resolution,omitempty"`
	ResolutionAmount  int64  `json:"resolution_amount"`
	ResolvedBy        string `json:"resolved_by,omitempty"`
	ResponseDeadline  string `json:"response_deadline"`
	SettlementPending bool   `json:"settlement_pending"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

// DisputeListResponse represents a list of disputes in API responses
type DisputeListResponse struct {
	Disputes []DisputeResponse `json:"disputes"`
}

// CashFlowQuery represents query parameters for the cash flow dashboard
type CashFlowQuery struct {
	HorizonDays int `form:"horizon_days,default=90" binding:"min=1,max=365"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=20" binding:"min=1,max=100"`
}
