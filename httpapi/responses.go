package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"salon-chat/domain"
	errs "salon-chat/errors"
)

type editRevisionResponse struct {
	PreviousContent string    `json:"previousContent"`
	EditedAt        time.Time `json:"editedAt"`
}

type messageResponse struct {
	ID          string                 `json:"id"`
	Sender      string                 `json:"sender"`
	Chat        string                 `json:"chat"`
	Content     string                 `json:"content"`
	ReadBy      []string               `json:"readBy"`
	ReplyTo     *string                `json:"replyTo,omitempty"`
	ReplyTarget *messageResponse       `json:"replyToMessage,omitempty"`
	IsPinned    bool                   `json:"isPinned"`
	IsEdited    bool                   `json:"isEdited"`
	IsDeleted   bool                   `json:"isDeleted"`
	DeletedAt   *time.Time             `json:"deletedAt,omitempty"`
	EditHistory []editRevisionResponse `json:"editHistory,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
}

func toMessageResponse(m domain.Message) messageResponse {
	var replyTo *string
	if m.ReplyTo != nil {
		replyTo = lo.ToPtr(m.ReplyTo.String())
	}
	return messageResponse{
		ID:      m.ID.String(),
		Sender:  m.Sender,
		Chat:    m.Chat,
		Content: m.Content,
		ReadBy:  m.ReadBy,
		ReplyTo: replyTo,
		EditHistory: lo.Map(m.EditHistory, func(rev domain.EditRevision, _ int) editRevisionResponse {
			return editRevisionResponse{PreviousContent: rev.PreviousContent, EditedAt: rev.EditedAt}
		}),
		IsPinned:  m.IsPinned,
		IsEdited:  m.IsEdited,
		IsDeleted: m.IsDeleted,
		DeletedAt: m.DeletedAt,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func toMessageViewResponse(v domain.MessageView) messageResponse {
	resp := toMessageResponse(v.Message)
	if v.ReplyTarget != nil {
		target := toMessageResponse(*v.ReplyTarget)
		resp.ReplyTarget = &target
	}
	return resp
}

// writeError maps the core's failure taxonomy onto stable HTTP categories so
// clients branch on status, not on message text.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, errs.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errs.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, errs.ErrInvalidState), errors.Is(err, errs.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, errs.ErrTimeout):
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
