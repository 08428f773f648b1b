package session

import (
	"context"
	"errors"
	"math/rand"
	"strings"
)

// 読み間違えやすい 0/O, 1/I/L を除いた文字
const joinCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	joinCodeLength   = 6
	joinCodeAttempts = 10
)

var errJoinCodeExhausted = errors.New("could not allocate a unique join code")

func randomJoinCode(randGen *rand.Rand) string {
	var b strings.Builder
	for i := 0; i < joinCodeLength; i++ {
		b.WriteByte(joinCodeAlphabet[randGen.Intn(len(joinCodeAlphabet))])
	}
	return b.String()
}

// NormalizeJoinCode は入力された参加コードを大文字に揃える
func NormalizeJoinCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// 待機中のルームと重複しない参加コードを割り当てる
func (c *Controller) allocateJoinCode(ctx context.Context, randGen *rand.Rand) (string, error) {
	for attempt := 0; attempt < joinCodeAttempts; attempt++ {
		code := randomJoinCode(randGen)
		inUse, err := c.store.JoinCodeInUse(ctx, code)
		if err != nil {
			return "", err
		}
		if !inUse {
			return code, nil
		}
	}
	return "", errJoinCodeExhausted
}
