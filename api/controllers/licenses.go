package controllers

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/keylock-io/keylock/api/responses"
	"github.com/keylock-io/keylock/api/validators"
	"github.com/keylock-io/keylock/internal/licensing"
	pkgerrors "github.com/keylock-io/keylock/pkg/errors"
	"github.com/keylock-io/keylock/pkg/logger"
)

type validateRequest struct {
	LicenseKey          string `json:"license_key" validate:"required"`
	HardwareFingerprint string `json:"hardware_fingerprint" validate:"required"`
	MachineName         string `json:"machine_name" validate:"omitempty,max=128"`
	ProductVersion      string `json:"product_version" validate:"omitempty,max=64"`
}

type validateResponse struct {
	IsValid              bool       `json:"is_valid"`
	CustomerName         string     `json:"customer_name,omitempty"`
	ExpirationDate       *time.Time `json:"expiration_date,omitempty"`
	RemainingActivations *int       `json:"remaining_activations,omitempty"`
	ErrorMessage         string     `json:"error_message,omitempty"`
}

// LicenseValidate handles the public validation endpoint. Business verdicts
// always come back with a 200; transport errors are reserved for storage
// failures and malformed requests.
func LicenseValidate(svc licensing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		var payload validateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		verdict, err := svc.Validate(r.Context(), licensing.ValidateInput{
			LicenseKey:          strings.TrimSpace(payload.LicenseKey),
			HardwareFingerprint: strings.TrimSpace(payload.HardwareFingerprint),
			MachineName:         strings.TrimSpace(payload.MachineName),
			ProductVersion:      strings.TrimSpace(payload.ProductVersion),
			IPAddress:           remoteIP(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		body := validateResponse{IsValid: verdict.IsValid}
		if verdict.IsValid {
			body.CustomerName = verdict.CustomerName
			expiration := verdict.ExpirationDate
			body.ExpirationDate = &expiration
			remaining := verdict.RemainingActivations
			body.RemainingActivations = &remaining
		} else {
			body.ErrorMessage = verdict.ErrorMessage
		}
		responses.WriteSuccess(w, body)
	}
}

type generateRequest struct {
	AdminSecret    string `json:"admin_secret"`
	CustomerName   string `json:"customer_name"`
	CustomerEmail  string `json:"customer_email" validate:"omitempty,email"`
	MaxActivations int    `json:"max_activations" validate:"omitempty,min=1,max=1000"`
	ValidityDays   int    `json:"validity_days"`
}

type generateResponse struct {
	Success        bool      `json:"success"`
	LicenseKey     string    `json:"license_key"`
	CustomerName   string    `json:"customer_name"`
	MaxActivations int       `json:"max_activations"`
	CreationDate   time.Time `json:"creation_date"`
	ExpirationDate time.Time `json:"expiration_date"`
	ValidityDays   int       `json:"validity_days"`
}

// LicenseGenerate handles administrative license issuance. The service
// enforces the precondition order: secret, customer name, validity window,
// storage availability.
func LicenseGenerate(svc licensing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		var payload generateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Generate(r.Context(), licensing.GenerateInput{
			AdminSecret:    payload.AdminSecret,
			CustomerName:   payload.CustomerName,
			CustomerEmail:  payload.CustomerEmail,
			MaxActivations: payload.MaxActivations,
			ValidityDays:   payload.ValidityDays,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, generateResponse{
			Success:        true,
			LicenseKey:     result.License.LicenseKey,
			CustomerName:   result.License.CustomerName,
			MaxActivations: result.License.MaxActivations,
			CreationDate:   result.License.CreationDate,
			ExpirationDate: result.License.ExpirationDate,
			ValidityDays:   result.ValidityDays,
		})
	}
}

type bulkGenerateRequest struct {
	AdminSecret        string `json:"admin_secret"`
	CustomerNamePrefix string `json:"customer_name_prefix"`
	Count              int    `json:"count"`
	ValidityDays       int    `json:"validity_days"`
	MaxActivations     int    `json:"max_activations" validate:"omitempty,min=1,max=1000"`
}

type bulkEntryResponse struct {
	Index        int    `json:"index"`
	CustomerName string `json:"customer_name"`
	LicenseKey   string `json:"license_key,omitempty"`
	Error        string `json:"error,omitempty"`
}

type bulkGenerateResponse struct {
	Requested int                 `json:"requested"`
	Created   int                 `json:"created"`
	Failed    int                 `json:"failed"`
	Licenses  []bulkEntryResponse `json:"licenses"`
}

// LicenseBulkGenerate issues a numbered batch of licenses. Partial failures
// are reported per entry; nothing is silently dropped.
func LicenseBulkGenerate(svc licensing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		var payload bulkGenerateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.BulkGenerate(r.Context(), licensing.BulkGenerateInput{
			AdminSecret:        payload.AdminSecret,
			CustomerNamePrefix: payload.CustomerNamePrefix,
			Count:              payload.Count,
			ValidityDays:       payload.ValidityDays,
			MaxActivations:     payload.MaxActivations,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		body := bulkGenerateResponse{
			Requested: result.Requested,
			Created:   result.Created,
			Failed:    result.Failed,
			Licenses:  make([]bulkEntryResponse, 0, len(result.Entries)),
		}
		for _, entry := range result.Entries {
			body.Licenses = append(body.Licenses, bulkEntryResponse{
				Index:        entry.Index,
				CustomerName: entry.CustomerName,
				LicenseKey:   entry.LicenseKey,
				Error:        entry.Error,
			})
		}

		status := http.StatusCreated
		if result.Failed > 0 {
			status = http.StatusMultiStatus
		}
		responses.WriteSuccessStatus(w, status, body)
	}
}

type statusResponse struct {
	StorageMode    string `json:"storage_mode"`
	Reachable      bool   `json:"reachable"`
	TotalLicenses  int64  `json:"total_licenses"`
	ActiveLicenses int64  `json:"active_licenses"`
}

// LicenseStatus reports the storage mode, reachability, and license counts.
func LicenseStatus(svc licensing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		report, err := svc.Status(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, statusResponse{
			StorageMode:    string(report.Mode),
			Reachable:      report.Reachable,
			TotalLicenses:  report.TotalLicenses,
			ActiveLicenses: report.ActiveLicenses,
		})
	}
}

func remoteIP(r *http.Request) string {
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
