package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"mailscout/research"
	"mailscout/utils"
)

type ResearchController struct {
	Client *research.Client // nil when no API key is configured
}

func NewResearchController(client *research.Client) *ResearchController {
	return &ResearchController{Client: client}
}

// Research asks the deep-research agent for a person's work email.
func (rc *ResearchController) Research(c *fiber.Ctx) error {
	if rc.Client == nil {
		return utils.ErrorResponse(c, fiber.StatusServiceUnavailable, "Research lookup is not configured", nil)
	}

	var query research.Query
	if err := c.BodyParser(&query); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request format", err)
	}
	if err := utils.ValidateStruct(query); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	finding, err := rc.Client.SearchEmail(c.UserContext(), query)
	if err != nil {
		utils.LogError("research_lookup", err, map[string]interface{}{"company": query.Company})
		if errors.Is(err, research.ErrUpstream) {
			return utils.ErrorResponse(c, fiber.StatusBadGateway, "Research service request failed", err)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Research lookup failed", err)
	}
	return c.JSON(utils.SuccessResponse(finding))
}
