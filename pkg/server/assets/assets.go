// ABOUTME: Embedded static assets for the chat relay
// ABOUTME: The browser client page served at /
package assets

import (
	_ "embed"
)

//go:embed index.html
var IndexHTML []byte
