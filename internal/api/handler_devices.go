package api

import (
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"iot-ledger-backend/internal/device"
	"iot-ledger-backend/internal/model"
	"iot-ledger-backend/internal/parse"
	"iot-ledger-backend/internal/storage"
)

// maxAttachmentBytes bounds a single uploaded attachment.
const maxAttachmentBytes = 10 << 20

type devicesResponse struct {
	Devices   []model.DeviceRecord `json:"devices"`
	Source    string               `json:"source"`
	Simulated bool                 `json:"simulated"`
}

// ListDevices returns the devices owned by the caller.
func (h *Handler) ListDevices(c *gin.Context) {
	page, size := parse.Page(c.Query("page"), c.Query("pageSize"))

	res := h.devices.ListDevices(c.Request.Context(), controller(c), page, size)
	if !res.OK() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": res.Err.Error()})
		return
	}

	source := "ledger"
	if res.Simulated() {
		source = "local"
	}
	c.JSON(http.StatusOK, devicesResponse{Devices: res.Value, Source: source, Simulated: res.Simulated()})
}

// RegisterDevice registers a device from a JSON body or a multipart form
// with optional attachments.
func (h *Handler) RegisterDevice(c *gin.Context) {
	var form device.Form
	var files []storage.Attachment

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBind(&form); err != nil {
			abortBind(c, err)
			return
		}
		mf, err := c.MultipartForm()
		if err != nil {
			abortBind(c, err)
			return
		}
		files, err = readAttachments(mf.File["attachments"])
		if err != nil {
			abortParam(c, err)
			return
		}
	} else if err := c.ShouldBindJSON(&form); err != nil {
		abortBind(c, err)
		return
	}

	reg, err := h.devices.Register(c.Request.Context(), controller(c), form, files)
	if err != nil {
		if abortForm(c, err) {
			return
		}
		if errors.Is(err, storage.ErrNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		log.Printf("Error registering device %q: %v", form.Name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, reg)
}

func readAttachments(headers []*multipart.FileHeader) ([]storage.Attachment, error) {
	files := make([]storage.Attachment, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > maxAttachmentBytes {
			return nil, errors.New("attachment " + fh.Filename + " is too large")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, storage.Attachment{Name: fh.Filename, Data: data})
	}
	return files, nil
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateDeviceStatus changes the status of one of the caller's devices.
func (h *Handler) UpdateDeviceStatus(c *gin.Context) {
	deviceHash, err := parse.DeviceHash(c.Param("hash"))
	if err != nil {
		abortParam(c, err)
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBind(c, err)
		return
	}
	status, err := parse.Status(req.Status)
	if err != nil {
		abortParam(c, err)
		return
	}

	tx, err := h.devices.UpdateStatus(c.Request.Context(), controller(c), deviceHash, status)
	if err != nil {
		abortLedger(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"txHash": tx.Hex(), "status": status})
}

type transferRequest struct {
	NewOwner string `json:"newOwner" binding:"required"`
}

// TransferDevice hands one of the caller's devices to another account.
func (h *Handler) TransferDevice(c *gin.Context) {
	deviceHash, err := parse.DeviceHash(c.Param("hash"))
	if err != nil {
		abortParam(c, err)
		return
	}
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBind(c, err)
		return
	}
	newOwner, err := parse.Address(req.NewOwner)
	if err != nil {
		abortParam(c, err)
		return
	}

	tx, err := h.devices.TransferOwnership(c.Request.Context(), controller(c), deviceHash, newOwner)
	if err != nil {
		abortLedger(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"txHash": tx.Hex(), "owner": newOwner.Hex()})
}
