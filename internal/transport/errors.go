package transport

import (
	"errors"
	"net/http"

	"catalog-admin/internal/form"
	"catalog-admin/internal/middleware"
	"catalog-admin/internal/repository"
	"catalog-admin/internal/service"
	"catalog-admin/internal/storage"

	"go.uber.org/zap"
)

// respondWithServiceError maps catalog errors onto the JSON error envelope
func respondWithServiceError(w http.ResponseWriter, logger *zap.Logger, action string, err error) {
	var verr *form.ValidationError
	var partial *repository.PartialWriteError

	switch {
	case errors.As(err, &verr):
		middleware.RespondWithValidationErrors(w, []middleware.ValidationError{{Field: verr.Field, Message: verr.Message}})
	case errors.Is(err, repository.ErrProductNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, service.ErrNoCurrentUser):
		middleware.RespondWithError(w, http.StatusUnauthorized, "no current user")
	case errors.Is(err, form.ErrNoSuchVariation):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNoImagesToUpload), errors.Is(err, storage.ErrUnsupportedImage):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrImageTooLarge):
		middleware.RespondWithError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrImagesUnavailable):
		middleware.RespondWithError(w, http.StatusServiceUnavailable, "image storage is not configured")
	case errors.As(err, &partial):
		logger.Error("Partial write", zap.String("action", action), zap.Error(err))
		middleware.RespondWithErrorCode(w, http.StatusInternalServerError, "partial_write",
			"failed to "+action+": product was not saved completely",
			map[string]interface{}{
				"stage":       partial.Stage,
				"rolled_back": partial.RolledBack,
			})
	case errors.Is(err, repository.ErrStoreUnavailable):
		logger.Error("Store unavailable", zap.String("action", action), zap.Error(err))
		middleware.RespondWithError(w, http.StatusServiceUnavailable, "product store unavailable, try again")
	default:
		logger.Error("Request failed", zap.String("action", action), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to "+action)
	}
}

// respondWithDecodeError reports a malformed or invalid request body
func respondWithDecodeError(w http.ResponseWriter, err error) {
	if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
		middleware.RespondWithValidationErrors(w, validationErrors)
		return
	}
	middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
}
