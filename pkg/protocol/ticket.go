package protocol

import "time"

// CompletionStatus records how a ticket was closed: confirmed by the user
// or force-closed after the conversation went idle.
type CompletionStatus string

const (
	TicketCompleted  CompletionStatus = "completed"
	TicketIncomplete CompletionStatus = "incomplete"
)

// NotInformed is the sentinel snapshot value for answer slots the user
// never filled in.
const NotInformed = "Não informado"

// Ticket is an immutable finalized intake record. It is created exactly
// once, at conversation closure, and never mutated afterward.
type Ticket struct {
	Number             string           `json:"ticket_number"`
	UserID             string           `json:"user_id"`
	Name               string           `json:"name"`
	Sector             string           `json:"sector"`
	CostCenter         string           `json:"cost_center"`
	Phone              string           `json:"phone"`
	Email              string           `json:"email"`
	Patrimony          string           `json:"patrimony"`
	ProblemType        string           `json:"problem_type"`
	ProblemDescription string           `json:"problem_description"`
	Status             CompletionStatus `json:"status"`
	CreatedAt          time.Time        `json:"created_at"`
}

// TicketFromFields snapshots the collected answer slots into a ticket,
// defaulting every unset slot to the NotInformed sentinel.
func TicketFromFields(userID string, fields map[string]string, status CompletionStatus) *Ticket {
	get := func(key string) string {
		if v := fields[key]; v != "" {
			return v
		}
		return NotInformed
	}
	return &Ticket{
		UserID:             userID,
		Name:               get(FieldName),
		Sector:             get(FieldSector),
		CostCenter:         get(FieldCostCenter),
		Phone:              get(FieldPhone),
		Email:              get(FieldEmail),
		Patrimony:          get(FieldPatrimony),
		ProblemType:        get(FieldProblemType),
		ProblemDescription: get(FieldProblemDescription),
		Status:             status,
	}
}
