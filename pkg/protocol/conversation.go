package protocol

import "time"

// State identifies where a user is in the intake dialogue.
type State string

const (
	StateInitial                   State = "initial"
	StateWaitingStart              State = "waiting_start"
	StateWaitingProblemType        State = "waiting_problem_type"
	StateWaitingProblemDescription State = "waiting_problem_description"
	StateWaitingPersonalInfoOK     State = "waiting_personal_info_ok"
	StateAskingName                State = "asking_name"
	StateAskingSector              State = "asking_sector"
	StateAskingCostCenter          State = "asking_cost_center"
	StateAskingPhone               State = "asking_phone"
	StateAskingEmail               State = "asking_email"
	StateAskingPatrimony           State = "asking_patrimony"
	StateWaitingConfirmation       State = "waiting_confirmation"
	StateWaitingRestartChoice      State = "waiting_restart_choice"

	// StateUnknown tags a persisted value outside the enumeration. The
	// dialogue engine recovers from it by restarting the conversation.
	StateUnknown State = "unknown"
)

var allStates = map[State]bool{
	StateInitial:                   true,
	StateWaitingStart:              true,
	StateWaitingProblemType:        true,
	StateWaitingProblemDescription: true,
	StateWaitingPersonalInfoOK:     true,
	StateAskingName:                true,
	StateAskingSector:              true,
	StateAskingCostCenter:          true,
	StateAskingPhone:               true,
	StateAskingEmail:               true,
	StateAskingPatrimony:           true,
	StateWaitingConfirmation:       true,
	StateWaitingRestartChoice:      true,
}

// Valid reports whether s is a member of the state enumeration.
func (s State) Valid() bool { return allStates[s] }

// ParseState maps a persisted string to a State. Anything outside the
// enumeration becomes StateUnknown so corruption stays observable.
func ParseState(raw string) State {
	s := State(raw)
	if s.Valid() {
		return s
	}
	return StateUnknown
}

// Status is the lifecycle status of a conversation.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Answer slot keys accumulated across turns.
const (
	FieldProblemType        = "problem_type"
	FieldProblemDescription = "problem_description"
	FieldName               = "name"
	FieldSector             = "sector"
	FieldCostCenter         = "cost_center"
	FieldPhone              = "phone"
	FieldEmail              = "email"
	FieldPatrimony          = "patrimony"
)

// Conversation is the persisted state of one user's progress through the
// intake dialogue. At most one exists per user ID.
type Conversation struct {
	UserID    string            `json:"user_id"`
	State     State             `json:"state"`
	Fields    map[string]string `json:"fields"`
	Status    Status            `json:"status"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewConversation returns a fresh open conversation at the initial state.
func NewConversation(userID string) *Conversation {
	return &Conversation{
		UserID: userID,
		State:  StateInitial,
		Fields: map[string]string{},
		Status: StatusOpen,
	}
}
