package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowTokenGuide prints how to copy the OAuth token and client id out of a
// logged-in browser session.
func ShowTokenGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	lines := []string{
		rule,
		"SOUNDCLOUD TOKEN GUIDE",
		rule,
		"",
		"zester talks to the SoundCloud API with your browser session's",
		"OAuth token and the web client's client id.",
		"",
		"1. Log in at https://soundcloud.com",
		"2. Open Developer Tools (F12 or Cmd+Option+I) and select Network",
		"3. Filter requests by 'api-v2.soundcloud.com' and reload the page",
		"4. Pick any request and copy:",
		"   - client_id from the request URL query string",
		"   - the Authorization header value after 'OAuth '",
		"",
		"Store them with:",
		"   zester auth login --name <account>",
		"",
		"or export them for a single run:",
		fmt.Sprintf("   export %s=...", EnvOAuthToken),
		fmt.Sprintf("   export %s=...", EnvClientID),
		"",
		"Tokens expire when you log out of the browser. A 401 or 403 from",
		"the API means the token needs replacing.",
		rule,
	}
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}
