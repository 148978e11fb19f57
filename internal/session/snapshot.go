package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ovaphlow/pitchfork/client-core-go/internal/session/entity"
)

// snapshotSchema is the minimum shape a durable record must have to be
// restored.
const snapshotSchema = `{
  "type": "object",
  "required": ["user", "token"],
  "properties": {
    "user": {
      "type": "object",
      "required": ["id", "email"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "email": {"type": "string", "minLength": 1}
      }
    },
    "token": {"type": "string", "minLength": 1},
    "activeRequest": {"type": "string"}
  }
}`

var snapshotValidator = jsonschema.MustCompileString("session-snapshot.json", snapshotSchema)

func encodeSnapshot(s entity.Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

func decodeSnapshot(raw []byte) (entity.Snapshot, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return entity.Snapshot{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if err := snapshotValidator.Validate(doc); err != nil {
		return entity.Snapshot{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	var s entity.Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return entity.Snapshot{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return s, nil
}

// tokenExpired reports whether token is a JWT whose exp claim is not after
// now. Opaque tokens and JWTs without exp are never considered expired; the
// server remains the authority on them.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}
