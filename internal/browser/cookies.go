package browser

import "encoding/json"

// MarshalCookies encodes a cookie set for caller-owned persistence. The
// core never writes this to disk itself.
func MarshalCookies(cookies []Cookie) ([]byte, error) {
	return json.MarshalIndent(cookies, "", "  ")
}

// UnmarshalCookies decodes a previously serialized cookie set.
func UnmarshalCookies(data []byte) ([]Cookie, error) {
	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, err
	}
	return cookies, nil
}
