package handlers

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/disgoorg/snowflake/v2"
)

// BotIDFromToken extracts the bot user ID encoded in the first segment of a
// Discord bot token. The audio node needs it before the gateway is up.
func BotIDFromToken(token string) (snowflake.ID, error) {
	token = strings.TrimPrefix(strings.TrimSpace(token), "Bot ")
	head, _, ok := strings.Cut(token, ".")
	if !ok || head == "" {
		return 0, fmt.Errorf("malformed bot token")
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(head, "="))
	if err != nil {
		return 0, fmt.Errorf("decode bot token: %w", err)
	}
	id, err := snowflake.Parse(string(raw))
	if err != nil {
		return 0, fmt.Errorf("bot token id: %w", err)
	}
	return id, nil
}
