package broadcast

import (
	"encoding/json"
	"fmt"
)

// Event はルームに配信される通知。このパッケージ内の型のみが実装できる。
type Event interface {
	Name() string
	isEvent()
}

type PlayerJoined struct {
	PlayerID uint `json:"playerId"`
}

type PlayerReady struct {
	PlayerID uint `json:"playerId"`
	Ready    bool `json:"ready"`
}

type GameStart struct {
	RoomID uint `json:"roomId"`
}

type AnswerSubmitted struct {
	PlayerID     uint `json:"playerId"`
	IsCorrect    bool `json:"isCorrect"`
	PointsEarned int  `json:"pointsEarned"`
}

type NextQuestion struct {
	QuestionIndex int `json:"questionIndex"`
	TimeLimit     int `json:"timeLimit"`
}

type GameEnd struct {
	FinalScores map[uint]int `json:"finalScores"`
	Winner      uint         `json:"winner"`
}

type PlayerLeft struct {
	PlayerID uint `json:"playerId"`
}

type RoomCancelled struct {
	RoomID uint `json:"roomId"`
}

func (PlayerJoined) Name() string    { return "player_joined" }
func (PlayerReady) Name() string     { return "player_ready" }
func (GameStart) Name() string       { return "game_start" }
func (AnswerSubmitted) Name() string { return "answer_submitted" }
func (NextQuestion) Name() string    { return "next_question" }
func (GameEnd) Name() string         { return "game_end" }
func (PlayerLeft) Name() string      { return "player_left" }
func (RoomCancelled) Name() string   { return "room_cancelled" }

func (PlayerJoined) isEvent()    {}
func (PlayerReady) isEvent()     {}
func (GameStart) isEvent()       {}
func (AnswerSubmitted) isEvent() {}
func (NextQuestion) isEvent()    {}
func (GameEnd) isEvent()         {}
func (PlayerLeft) isEvent()      {}
func (RoomCancelled) isEvent()   {}

// Terminal はルームの終了を表すイベントかどうか
func Terminal(ev Event) bool {
	switch ev.(type) {
	case GameEnd, RoomCancelled:
		return true
	}
	return false
}

// Envelope はクライアントやRedisに流すときのJSON形式
type Envelope struct {
	Type   string          `json:"type"`
	RoomID uint            `json:"roomId"`
	Data   json.RawMessage `json:"data"`
}

func Encode(roomID uint, ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: ev.Name(), RoomID: roomID, Data: data})
}

func Decode(payload []byte) (uint, Event, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return 0, nil, err
	}

	var ev Event
	var err error
	switch env.Type {
	case "player_joined":
		ev, err = decodeAs[PlayerJoined](env.Data)
	case "player_ready":
		ev, err = decodeAs[PlayerReady](env.Data)
	case "game_start":
		ev, err = decodeAs[GameStart](env.Data)
	case "answer_submitted":
		ev, err = decodeAs[AnswerSubmitted](env.Data)
	case "next_question":
		ev, err = decodeAs[NextQuestion](env.Data)
	case "game_end":
		ev, err = decodeAs[GameEnd](env.Data)
	case "player_left":
		ev, err = decodeAs[PlayerLeft](env.Data)
	case "room_cancelled":
		ev, err = decodeAs[RoomCancelled](env.Data)
	default:
		return 0, nil, fmt.Errorf("unknown event type %q", env.Type)
	}
	if err != nil {
		return 0, nil, err
	}
	return env.RoomID, ev, nil
}

func decodeAs[T Event](data json.RawMessage) (Event, error) {
	var ev T
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}
