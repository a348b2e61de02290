package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"
)

const HeaderTwilioSignature = "X-Twilio-Signature"

// Signature computes X-Twilio-Signature for a POST: base64(HMAC-SHA1(authToken,
// fullURL + each form key and value in key order)).
func Signature(authToken, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		vals := append([]string(nil), form[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func ValidSignature(authToken, fullURL string, form url.Values, sig string) bool {
	if sig == "" {
		return false
	}
	want := Signature(authToken, fullURL, form)
	return hmac.Equal([]byte(want), []byte(sig))
}
