package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"iot-ledger-backend/internal/device"
	"iot-ledger-backend/internal/model"
	"iot-ledger-backend/internal/parse"
)

type readingRequest struct {
	DeviceHash string `json:"deviceHash" binding:"required"`
	DataType   uint64 `json:"dataType" binding:"required"`
	Value      string `json:"value" binding:"required"`
}

func (r readingRequest) reading() (device.Reading, error) {
	h, err := parse.DeviceHash(r.DeviceHash)
	if err != nil {
		return device.Reading{}, err
	}
	return device.Reading{DeviceHash: h, DataType: r.DataType, Value: r.Value}, nil
}

// SubmitData records one sensor reading.
func (h *Handler) SubmitData(c *gin.Context) {
	var req readingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBind(c, err)
		return
	}
	r, err := req.reading()
	if err != nil {
		abortParam(c, err)
		return
	}

	rec, err := h.devices.SubmitData(c.Request.Context(), controller(c), r.DeviceHash, r.DataType, r.Value)
	if err != nil {
		abortLedger(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

type batchRequest struct {
	Readings []readingRequest `json:"readings" binding:"required,min=1,dive"`
}

// SubmitBatch records several readings in one transaction.
func (h *Handler) SubmitBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBind(c, err)
		return
	}
	readings := make([]device.Reading, len(req.Readings))
	for i, rr := range req.Readings {
		r, err := rr.reading()
		if err != nil {
			abortParam(c, err)
			return
		}
		readings[i] = r
	}

	recs, err := h.devices.SubmitBatch(c.Request.Context(), controller(c), readings)
	if err != nil {
		abortLedger(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"records": recs})
}

// GetRecords pages through the data records of a device.
func (h *Handler) GetRecords(c *gin.Context) {
	deviceHash, err := parse.DeviceHash(c.Param("hash"))
	if err != nil {
		abortParam(c, err)
		return
	}
	start, _ := strconv.Atoi(c.DefaultQuery("start", "0"))
	_, count := parse.Page("", c.Query("count"))

	res := h.devices.Records(c.Request.Context(), deviceHash, max(start, 0), count)
	if !res.OK() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": res.Err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": res.Value, "simulated": res.Simulated()})
}

type verifyRequest struct {
	RecordIndex *uint64 `json:"recordIndex" binding:"required"`
	ExternalAPI string  `json:"externalApi" binding:"required"`
}

// RequestVerification asks the oracle to check a record against an
// external API.
func (h *Handler) RequestVerification(c *gin.Context) {
	deviceHash, err := parse.DeviceHash(c.Param("hash"))
	if err != nil {
		abortParam(c, err)
		return
	}
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBind(c, err)
		return
	}

	tx, err := h.writer.RequestDataVerification(c.Request.Context(), deviceHash, *req.RecordIndex, req.ExternalAPI)
	if err != nil {
		controller(c).Toast(model.LevelError, "Failed to request data verification")
		abortLedger(c, err)
		return
	}
	controller(c).Toast(model.LevelInfo, "Data verification requested")
	c.JSON(http.StatusAccepted, gin.H{"txHash": tx.Hex()})
}

type validateRequest struct {
	Timestamp uint64 `json:"timestamp" binding:"required"`
}

// ValidateData marks the record written at a timestamp as validated.
func (h *Handler) ValidateData(c *gin.Context) {
	deviceHash, err := parse.DeviceHash(c.Param("hash"))
	if err != nil {
		abortParam(c, err)
		return
	}
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBind(c, err)
		return
	}

	tx, err := h.writer.ValidateData(c.Request.Context(), deviceHash, req.Timestamp)
	if err != nil {
		abortLedger(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"txHash": tx.Hex()})
}

// GetDisputes lists the disputes awaiting resolution.
func (h *Handler) GetDisputes(c *gin.Context) {
	disputes, err := h.reader.PendingDisputes(c.Request.Context())
	if err != nil {
		abortLedger(c, err)
		return
	}
	if disputes == nil {
		disputes = []model.Dispute{}
	}
	c.JSON(http.StatusOK, gin.H{"disputes": disputes})
}
