package pgnotify

import (
	"encoding/json"

	platformerrors "github.com/jmgilman/go/errors"

	"github.com/IvanBrykalov/regioncache/invalidation"
)

// MaxPayload is the largest NOTIFY payload PostgreSQL accepts (8000 bytes
// in a default build, exclusive).
const MaxPayload = 7999

// envelope is the wire form of an invalidation.Message. Field names are
// short because every byte counts against MaxPayload.
type envelope struct {
	Region string          `json:"r"`
	Key    json.RawMessage `json:"k,omitempty"`
	All    bool            `json:"a,omitempty"`
	Origin string          `json:"o"`
}

func encode[K comparable](m invalidation.Message[K]) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	env := envelope{Region: m.Region, All: m.EvictAll, Origin: string(m.Origin)}
	if m.Key != nil {
		k, err := json.Marshal(*m.Key)
		if err != nil {
			return nil, platformerrors.Wrap(err, platformerrors.CodeInvalidInput, "pgnotify: encode key")
		}
		env.Key = k
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, platformerrors.Wrap(err, platformerrors.CodeInvalidInput, "pgnotify: encode message")
	}
	if len(b) > MaxPayload {
		return nil, platformerrors.WithContext(
			platformerrors.Newf(platformerrors.CodeInvalidInput, "pgnotify: payload is %d bytes, limit %d", len(b), MaxPayload),
			"region", m.Region)
	}
	return b, nil
}

func parseEnvelope(payload string) (envelope, error) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return envelope{}, platformerrors.Wrap(err, platformerrors.CodeInvalidInput, "pgnotify: decode envelope")
	}
	return env, nil
}

func decode[K comparable](env envelope) (invalidation.Message[K], error) {
	m := invalidation.Message[K]{
		Region:   env.Region,
		EvictAll: env.All,
		Origin:   invalidation.MemberID(env.Origin),
	}
	if len(env.Key) > 0 {
		var k K
		if err := json.Unmarshal(env.Key, &k); err != nil {
			return invalidation.Message[K]{}, platformerrors.Wrap(err, platformerrors.CodeInvalidInput, "pgnotify: decode key")
		}
		m.Key = &k
	}
	return m, m.Validate()
}
