package web

import (
	"encoding/hex"
	"encoding/json"

	"github.com/gofiber/fiber/v3"
	"lukechampine.com/blake3"
)

// sendJSON writes v with a strong ETag over the encoded body and answers 304 when the client
// already holds it.
func sendJSON(c fiber.Ctx, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return internalError(c, err)
	}

	sum := blake3.Sum256(body)
	etag := `"` + hex.EncodeToString(sum[:16]) + `"`

	c.Set(fiber.HeaderETag, etag)

	if c.Get(fiber.HeaderIfNoneMatch) == etag {
		return c.SendStatus(fiber.StatusNotModified)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	return c.Send(body)
}
