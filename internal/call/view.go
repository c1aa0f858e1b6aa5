package call

type ControlKind string

const (
	ControlStart ControlKind = "start"
	ControlEnd   ControlKind = "end"
)

type Avatar struct {
	Name     string `json:"name"`
	Image    string `json:"image"`
	Speaking bool   `json:"speaking"`
}

type Control struct {
	Kind    ControlKind `json:"kind"`
	Label   string      `json:"label"`
	Pinging bool        `json:"pinging"`
}

// Transcript is the most recent line. Key changes whenever the text does so
// the client can restart its fade-in.
type Transcript struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

type View struct {
	Status      Status      `json:"status"`
	Interviewer Avatar      `json:"interviewer"`
	User        Avatar      `json:"user"`
	Transcript  *Transcript `json:"transcript,omitempty"`
	Control     Control     `json:"control"`
}

// Render derives the call screen from a snapshot.
func Render(s Snapshot) View {
	v := View{
		Status:      s.Status,
		Interviewer: Avatar{Name: "AI Interviewer", Image: "/ai-avatar.png", Speaking: s.Speaking},
		User:        Avatar{Name: s.UserName, Image: "/user-avatar.png"},
	}

	if len(s.Messages) > 0 {
		v.Transcript = &Transcript{Key: s.LastMessage, Text: s.LastMessage}
	}

	switch s.Status {
	case StatusActive:
		v.Control = Control{Kind: ControlEnd, Label: "End"}
	case StatusConnecting:
		v.Control = Control{Kind: ControlStart, Label: ". . .", Pinging: true}
	default:
		v.Control = Control{Kind: ControlStart, Label: "Call"}
	}

	return v
}
