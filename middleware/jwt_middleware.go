package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"mailscout/utils"
)

// Protected requires a valid access token, taken from the Authorization
// header or the access_token cookie. The token subject is stored in
// c.Locals("subject").
func Protected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Try to get token from Authorization header first
		var token string
		authHeader := c.Get("Authorization")
		if authHeader != "" {
			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid authorization format",
				})
			}
			token = tokenParts[1]
		} else {
			token = c.Cookies("access_token")
			if token == "" {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Authorization required",
				})
			}
		}

		claims, err := utils.ParseToken(token, secret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("subject", claims.Subject)
		return c.Next()
	}
}

// Subject returns the authenticated caller, or "anonymous" outside Protected.
func Subject(c *fiber.Ctx) string {
	if s, ok := c.Locals("subject").(string); ok && s != "" {
		return s
	}
	return "anonymous"
}
