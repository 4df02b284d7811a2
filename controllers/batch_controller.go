package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"mailscout/models"
	"mailscout/store"
	"mailscout/utils"
	"mailscout/verifier"
	"mailscout/worker"
)

type BatchController struct {
	Store    store.BatchStore
	Worker   *worker.BatchWorker
	Backends *verifier.Registry
	Profiles store.ProfileSource // nil when the database is disabled
	Logger   *logrus.Entry
}

func NewBatchController(batches store.BatchStore, w *worker.BatchWorker, backends *verifier.Registry, profiles store.ProfileSource) *BatchController {
	return &BatchController{
		Store:    batches,
		Worker:   w,
		Backends: backends,
		Profiles: profiles,
		Logger:   utils.Component("batch_controller"),
	}
}

type entriesRequest struct {
	Entries []models.PersonIdentity `json:"entries" validate:"max=1000,dive"`
}

type profilesRequest struct {
	ProfileIDs []uint `json:"profile_ids" validate:"required,min=1,max=1000"`
}

type runRequest struct {
	Backend string `json:"backend" validate:"omitempty,oneof=cascade deliverability search"`
}

// CreateBatch starts an empty batch, optionally seeded with entries.
func (bc *BatchController) CreateBatch(c *fiber.Ctx) error {
	var request entriesRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&request); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request format", err)
		}
		if err := utils.ValidateStruct(request); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
		}
	}

	batch, err := bc.Store.Create(c.UserContext())
	if err != nil {
		utils.LogError("batch_create", err, nil)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create batch", err)
	}
	if len(request.Entries) > 0 {
		if batch, err = bc.Store.AppendEntries(c.UserContext(), batch.ID, request.Entries); err != nil {
			return bc.storeError(c, err)
		}
	}

	bc.Logger.WithFields(logrus.Fields{"batch_id": batch.ID, "entries": len(batch.Entries)}).Info("Batch created")
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(batch))
}

func (bc *BatchController) GetBatch(c *fiber.Ctx) error {
	batch, err := bc.Store.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return bc.storeError(c, err)
	}
	return c.JSON(utils.SuccessResponse(batch))
}

// AddEntries appends identities to the batch in request order.
func (bc *BatchController) AddEntries(c *fiber.Ctx) error {
	var request entriesRequest
	if err := c.BodyParser(&request); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request format", err)
	}
	if len(request.Entries) == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "At least one entry is required", nil)
	}
	if err := utils.ValidateStruct(request); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	batch, err := bc.Store.AppendEntries(c.UserContext(), c.Params("id"), request.Entries)
	if err != nil {
		return bc.storeError(c, err)
	}
	return c.JSON(utils.SuccessResponse(batch))
}

// AddProfiles appends the identities of stored profiles. Profiles without a
// usable name or company are reported back as skipped.
func (bc *BatchController) AddProfiles(c *fiber.Ctx) error {
	if bc.Profiles == nil {
		return utils.ErrorResponse(c, fiber.StatusServiceUnavailable, "Profile database is not configured", nil)
	}

	var request profilesRequest
	if err := c.BodyParser(&request); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request format", err)
	}
	if err := utils.ValidateStruct(request); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	batch, err := bc.Store.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return bc.storeError(c, err)
	}

	profiles, err := bc.Profiles.FindByIDs(c.UserContext(), request.ProfileIDs)
	if err != nil {
		utils.LogError("profile_lookup", err, map[string]interface{}{"batch_id": c.Params("id")})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load profiles", err)
	}

	found := make(map[uint]bool, len(profiles))
	var entries []models.PersonIdentity
	var skipped []uint
	for _, p := range profiles {
		found[p.ID] = true
		identity := p.Identity()
		if identity.FirstName == "" || identity.LastName == "" || identity.Domain == "" {
			skipped = append(skipped, p.ID)
			continue
		}
		entries = append(entries, identity)
	}
	for _, id := range request.ProfileIDs {
		if !found[id] {
			skipped = append(skipped, id)
		}
	}

	if len(entries) > 0 {
		if batch, err = bc.Store.AppendEntries(c.UserContext(), batch.ID, entries); err != nil {
			return bc.storeError(c, err)
		}
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"batch":   batch,
		"added":   len(entries),
		"skipped": skipped,
	}))
}

// RunBatch queues a run of the batch on the worker.
func (bc *BatchController) RunBatch(c *fiber.Ctx) error {
	var request runRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&request); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request format", err)
		}
	}
	if request.Backend == "" {
		request.Backend = c.Query("backend")
	}
	if err := utils.ValidateStruct(request); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	backend, err := bc.Backends.Get(request.Backend)
	if err != nil {
		return backendError(c, err)
	}

	state, err := bc.Worker.Enqueue(c.UserContext(), c.Params("id"), backend)
	if err != nil {
		return bc.storeError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(utils.SuccessResponse(state))
}

func (bc *BatchController) GetProgress(c *fiber.Ctx) error {
	state, err := bc.Worker.State(c.Params("id"))
	if err != nil {
		return bc.storeError(c, err)
	}
	return c.JSON(utils.SuccessResponse(state))
}

// GetReports returns the reports of the last completed run, as CSV with
// format=csv.
func (bc *BatchController) GetReports(c *fiber.Ctx) error {
	reports, state, err := bc.Worker.Reports(c.Params("id"))
	if err != nil {
		return bc.storeError(c, err)
	}
	if c.Query("format") == "csv" {
		c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+state.BatchID+`.csv"`)
		return writeReportsCSV(c, reports)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"run":     state,
		"reports": reports,
	}))
}

// DeleteBatch removes the batch and everything held for its runs.
func (bc *BatchController) DeleteBatch(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := bc.Store.Delete(c.UserContext(), id); err != nil {
		return bc.storeError(c, err)
	}
	bc.Worker.Forget(id)
	bc.Logger.WithField("batch_id", id).Info("Batch deleted")
	return c.SendStatus(fiber.StatusNoContent)
}

func (bc *BatchController) storeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrBatchNotFound):
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Batch not found", nil)
	case errors.Is(err, worker.ErrNoRun):
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Batch has not been run", nil)
	case errors.Is(err, worker.ErrRunInProgress):
		return utils.ErrorResponse(c, fiber.StatusConflict, "Batch run is in progress", nil)
	case errors.Is(err, worker.ErrEmptyBatch):
		return utils.ErrorResponse(c, fiber.StatusUnprocessableEntity, "Batch has no usable entries", nil)
	case errors.Is(err, worker.ErrQueueFull):
		return utils.ErrorResponse(c, fiber.StatusServiceUnavailable, "Too many batches queued, try again later", nil)
	}
	utils.LogError("batch_store", err, map[string]interface{}{"batch_id": c.Params("id")})
	return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Batch operation failed", err)
}
