package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lumisalon/salon-chat/internal/chat"
	"github.com/lumisalon/salon-chat/internal/common"
)

// Reindex enqueues an asynchronous catalog-embedding rebuild.
func (h *Handler) Reindex(c *gin.Context) {
	if h.Rabbit == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "reindex queue not configured")
		return
	}

	jobID, err := common.NewULID()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	j := &chat.IndexJob{ID: jobID, Status: chat.JobQueued}
	if err := h.Repo.CreateJob(c.Request.Context(), j); err != nil {
		log.Printf("admin: create index job failed job_id=%s err=%v", jobID, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	if err := h.Rabbit.PublishJob(c.Request.Context(), jobID); err != nil {
		log.Printf("admin: publish index job failed job_id=%s err=%v", jobID, err)
		common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobId": jobID})
}

func (h *Handler) GetIndexJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	j, err := h.Repo.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": j})
}

// ReloadIndex re-hydrates the in-memory index from persisted vectors,
// typically after a worker finished a rebuild.
func (h *Handler) ReloadIndex(c *gin.Context) {
	if err := h.Vectors.Refresh(c.Request.Context(), h.Index); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to load vectors")
		return
	}
	c.JSON(http.StatusOK, gin.H{"vectors": h.Index.Len()})
}

func (h *Handler) IndexStat(c *gin.Context) {
	persisted, err := h.Vectors.Count(c.Request.Context())
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"loaded":    h.Index.Len(),
		"persisted": persisted,
	})
}
