package state

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// casScript sets KEYS[1] to {version=ARGV[2], payload=ARGV[3]} only when the
// stored version equals ARGV[1] (absent counts as "0"). ARGV[4] is a TTL in
// seconds, 0 for none. Returns 1 on swap, 0 otherwise.
const casScript = `
local cur = redis.call('HGET', KEYS[1], 'version')
if not cur then cur = '0' end
if cur ~= ARGV[1] then return 0 end
redis.call('HSET', KEYS[1], 'version', ARGV[2], 'payload', ARGV[3])
if tonumber(ARGV[4]) > 0 then redis.call('EXPIRE', KEYS[1], ARGV[4]) end
return 1
`

func encodeSession(s Session) (string, error) {
	raw, err := sonic.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	return string(raw), nil
}

func decodeSession(payload string) (Session, error) {
	var s Session
	if err := sonic.UnmarshalString(payload, &s); err != nil {
		return Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Session{}, fmt.Errorf("invalid session loaded from store: %w", err)
	}
	return s, nil
}
