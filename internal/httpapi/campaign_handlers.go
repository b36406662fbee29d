package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"larpcamp.org/internal/campaign"
	"larpcamp.org/internal/obs"
)

type updateStatsRequest struct {
	Stats map[string]any `json:"stats" validate:"required"`
}

type updateDowntimeRequest struct {
	UID      string `json:"uid"`
	Proposal string `json:"proposal" validate:"required"`
}

type newPlayerRequest struct {
	PlayerName string `json:"player_name" validate:"required"`
	ShadowName string `json:"shadow_name" validate:"required"`
}

type worldJournalRequest struct {
	Tags          []string `json:"tags" validate:"required,min=1"`
	Thread        string   `json:"thread" validate:"required"`
	DescriptionMD string   `json:"description_md" validate:"required"`
}

type rejectDowntimeRequest struct {
	PlayerKey    string `json:"player_key" validate:"required"`
	UID          string `json:"uid" validate:"required"`
	StaffComment string `json:"staff_comment" validate:"required"`
}

type acceptDowntimeRequest struct {
	PlayerKey    string   `json:"player_key" validate:"required"`
	UID          string   `json:"uid" validate:"required"`
	JournalEntry string   `json:"journal_entry"`
	Tags         []string `json:"tags"`
}

type tagsRequest struct {
	PlayerKey string   `json:"player_key" validate:"required"`
	Tags      []string `json:"tags" validate:"required,min=1"`
}

// newValidator reports failures by JSON field name so they read the same as
// the client's payload.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// bind decodes and validates a request body. Any failure has already been
// written to w when it returns false.
func (a *API) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			handleCampaignError(w, r, campaign.MissingField(verrs[0].Field()))
			return false
		}
		writeError(w, r, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// --- player ---

func (a *API) playerData(w http.ResponseWriter, r *http.Request, c campaign.Character) {
	data, err := a.campaign.PlayerData(r.Context(), c)
	if err != nil {
		handleCampaignError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (a *API) updateStats(w http.ResponseWriter, r *http.Request, c campaign.Character) {
	var req updateStatsRequest
	if !a.bind(w, r, &req) {
		return
	}
	if err := a.campaign.UpdateStats(r.Context(), c, req.Stats); err != nil {
		handleCampaignError(w, r, err)
		return
	}
	writeOK(w)
}

func (a *API) updateDowntime(w http.ResponseWriter, r *http.Request, c campaign.Character) {
	var req updateDowntimeRequest
	if !a.bind(w, r, &req) {
		return
	}
	uid, err := a.campaign.ProposeDowntime(r.Context(), c, req.UID, req.Proposal)
	if err != nil {
		handleCampaignError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"uid": uid})
}

// --- staff ---

func (a *API) staffData(w http.ResponseWriter, r *http.Request, st campaign.Staff) {
	data, err := a.campaign.StaffData(r.Context(), st)
	if err != nil {
		handleCampaignError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (a *API) newPlayer(w http.ResponseWriter, r *http.Request, _ campaign.Staff) {
	var req newPlayerRequest
	if !a.bind(w, r, &req) {
		return
	}
	c, err := a.campaign.NewPlayer(r.Context(), req.PlayerName, req.ShadowName)
	if err != nil {
		handleCampaignError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"key": c.Key})
}

func (a *API) addWorldJournalEntry(w http.ResponseWriter, r *http.Request, st campaign.Staff) {
	var req worldJournalRequest
	if !a.bind(w, r, &req) {
		return
	}
	id, err := a.campaign.AddWorldJournalEntry(r.Context(), st, req.Tags, req.Thread, req.DescriptionMD)
	if err != nil {
		handleCampaignError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
}

func (a *API) rejectDowntime(w http.ResponseWriter, r *http.Request, _ campaign.Staff) {
	var req rejectDowntimeRequest
	if !a.bind(w, r, &req) {
		return
	}
	if err := a.campaign.RejectDowntime(r.Context(), req.PlayerKey, req.UID, req.StaffComment); err != nil {
		handleCampaignError(w, r, err)
		return
	}
	writeOK(w)
}

func (a *API) acceptDowntime(w http.ResponseWriter, r *http.Request, st campaign.Staff) {
	var req acceptDowntimeRequest
	if !a.bind(w, r, &req) {
		return
	}
	err := a.campaign.AcceptDowntime(r.Context(), st, campaign.AcceptRequest{
		PlayerKey:    req.PlayerKey,
		UID:          req.UID,
		JournalEntry: req.JournalEntry,
		Tags:         req.Tags,
	})
	if err != nil {
		handleCampaignError(w, r, err)
		return
	}
	writeOK(w)
}

func (a *API) addTags(w http.ResponseWriter, r *http.Request, _ campaign.Staff) {
	var req tagsRequest
	if !a.bind(w, r, &req) {
		return
	}
	if err := a.campaign.AddTags(r.Context(), req.PlayerKey, req.Tags); err != nil {
		handleCampaignError(w, r, err)
		return
	}
	writeOK(w)
}

func (a *API) removeTags(w http.ResponseWriter, r *http.Request, _ campaign.Staff) {
	var req tagsRequest
	if !a.bind(w, r, &req) {
		return
	}
	if err := a.campaign.RemoveTags(r.Context(), req.PlayerKey, req.Tags); err != nil {
		handleCampaignError(w, r, err)
		return
	}
	writeOK(w)
}

func (a *API) releaseJournalDrafts(w http.ResponseWriter, r *http.Request, _ campaign.Staff) {
	wm, err := a.campaign.ReleaseJournalDrafts(r.Context())
	if err != nil {
		handleCampaignError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"watermark": wm})
}

// --- helpers ---

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleCampaignError(w http.ResponseWriter, r *http.Request, err error) {
	switch campaign.KindOf(err) {
	case campaign.KindMissingField, campaign.KindInvalid:
		writeError(w, r, http.StatusBadRequest, campaign.PublicMessage(err))
	case campaign.KindUnauthorized:
		writeError(w, r, http.StatusUnauthorized, campaign.PublicMessage(err))
	case campaign.KindNotFound:
		writeError(w, r, http.StatusNotFound, campaign.PublicMessage(err))
	case campaign.KindConflict:
		writeError(w, r, http.StatusConflict, campaign.PublicMessage(err))
	default:
		obs.Logger().Error().
			Err(err).
			Str("request_id", RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("campaign request failed")
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	body := map[string]string{"error": msg}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		body["request_id"] = rid
	}
	writeJSON(w, code, body)
}
