package handlers

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/repolens/repolens-backend/internal/logger"
	"github.com/repolens/repolens-backend/internal/repos"
)

var scanTimeRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

type SettingsHandler struct {
	log      *logger.Logger
	settings repos.SettingRepo
	defTime  string
}

func NewSettingsHandler(log *logger.Logger, settings repos.SettingRepo, defaultScanTime string) *SettingsHandler {
	return &SettingsHandler{
		log:      log.With("handler", "SettingsHandler"),
		settings: settings,
		defTime:  defaultScanTime,
	}
}

func (h *SettingsHandler) Get(c *gin.Context) {
	scanTime, err := h.settings.Get(c.Request.Context(), "scan_time", h.defTime)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "load_settings_failed", err)
		return
	}
	RespondOK(c, gin.H{"scan_time": scanTime})
}

func (h *SettingsHandler) Save(c *gin.Context) {
	var body struct {
		ScanTime string `json:"scan_time"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.ScanTime == "" {
		RespondError(c, http.StatusBadRequest, "invalid_data", errors.New("scan_time is required"))
		return
	}
	if !scanTimeRe.MatchString(body.ScanTime) {
		RespondError(c, http.StatusBadRequest, "invalid_scan_time", errors.New("scan_time must be HH:MM"))
		return
	}
	if err := h.settings.Set(c.Request.Context(), "scan_time", body.ScanTime); err != nil {
		h.log.Error("Save setting failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "save_settings_failed", err)
		return
	}
	RespondOK(c, gin.H{"status": "saved", "scan_time": body.ScanTime})
}
