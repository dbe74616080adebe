package protocol

import "turnkeep.app/internal/game"

// View is everything a renderer needs to draw the current game.
type View struct {
	Ready       bool                       `json:"ready"`
	Turn        int                        `json:"turn,omitempty"`
	TotalTurns  int                        `json:"totalTurns,omitempty"`
	NumPlayers  int                        `json:"numPlayers,omitempty"`
	Finished    bool                       `json:"finished,omitempty"`
	UndoDepth   int                        `json:"undoDepth"`
	Players     []game.Player              `json:"players"`
	ActionOrder []string                   `json:"actionOrder,omitempty"`
	Actions     map[string]game.ActionData `json:"actions,omitempty"`
}

// STATE (server -> renderer)
type StateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// Reason names the operation that produced this view (start, change,
	// undo, restore, ...).
	Reason string `json:"reason"`
	View   View   `json:"view"`
}

// NOTICE (server -> renderer): user-visible confirmation or failure.
type NoticeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Level           string `json:"level"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message"`
}

func NewStateMsg(reason string, v View) StateMsg {
	return StateMsg{Type: TypeState, ProtocolVersion: Version, Reason: reason, View: v}
}

func NewNoticeMsg(level, code, message string) NoticeMsg {
	return NoticeMsg{Type: TypeNotice, ProtocolVersion: Version, Level: level, Code: code, Message: message}
}

// ChartDataset is one bar series of the results chart.
type ChartDataset struct {
	Label  string `json:"label"`
	Values []int  `json:"data"`
}

type Chart struct {
	Labels   []string       `json:"labels"`
	Datasets []ChartDataset `json:"datasets"`
}
