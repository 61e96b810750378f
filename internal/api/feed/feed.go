package feed

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/errors"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/model"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/service"
	svcerrors "github.com/tamimiqbalfysal/Today-2.2.5/internal/service/errors"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/storage"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/store/interfaces"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/util"
	"go.uber.org/zap"
)

// FeedHandler 处理信息流相关的HTTP请求
type FeedHandler struct {
	feedService *service.FeedService
	storage     storage.MediaStorage
	watcher     interfaces.Watcher
}

// NewFeedHandler 创建一个新的 FeedHandler 实例
// watcher 可以为 nil，此时通知订阅接口不可用
func NewFeedHandler(feedService *service.FeedService, mediaStorage storage.MediaStorage, watcher interfaces.Watcher) *FeedHandler {
	return &FeedHandler{
		feedService: feedService,
		storage:     mediaStorage,
		watcher:     watcher,
	}
}

// 服务层错误码与应用错误码的映射
var serviceErrorMap = map[svcerrors.ErrorCode]errors.ErrorCode{
	svcerrors.ErrInsufficientCredits: errors.ErrInsufficientCredits,
	svcerrors.ErrForbidden:           errors.ErrForbidden,
	svcerrors.ErrNotFound:            errors.ErrResourceNotFound,
	svcerrors.ErrInvalidOperation:    errors.ErrBadRequest,
	svcerrors.ErrInvalidChallenge:    errors.ErrInvalidChallenge,
	svcerrors.ErrInvalidInput:        errors.ErrValidation,
	svcerrors.ErrConflict:            errors.ErrResourceConflict,
}

// handleServiceError 把服务层错误转换为统一的HTTP错误响应
func handleServiceError(c *gin.Context, err error) {
	if se, ok := err.(*svcerrors.ServiceError); ok {
		code, found := serviceErrorMap[se.Code]
		if !found {
			code = errors.ErrInternal
		}
		errors.HandleError(c, errors.New(code, se.Message))
		return
	}
	errors.HandleError(c, errors.Wrap(errors.ErrInternal, "操作失败", err))
}

// CreatePost 创建帖子，支持附带一个媒体文件和防御积分
func (h *FeedHandler) CreatePost(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		util.Logger.Error("无法解析表单数据", zap.Error(err))
		errors.HandleError(c, errors.Wrap(errors.ErrBadRequest, "无法解析表单数据", err))
		return
	}

	uid := c.GetString("uid")
	content := c.PostForm("content")

	var defenceCredit int64
	if v := c.PostForm("defence_credit"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 0 {
			errors.HandleError(c, errors.New(errors.ErrValidation, "无效的防御积分"))
			return
		}
		defenceCredit = parsed
	}

	// 媒体上传在事务之外尽力而为：先上传，事务失败时再删除
	var mediaRef, mediaType string
	if file, err := c.FormFile("media"); err == nil {
		src, err := file.Open()
		if err != nil {
			errors.HandleError(c, errors.Wrap(errors.ErrStorage, "读取上传文件失败", err))
			return
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			errors.HandleError(c, errors.Wrap(errors.ErrStorage, "读取上传文件失败", err))
			return
		}

		contentType := file.Header.Get("Content-Type")
		if strings.HasPrefix(contentType, "image/") {
			mediaType = "image"
		} else {
			mediaType = "video"
		}

		path := fmt.Sprintf("posts/%s/%s", uid, util.GenerateUniqueFilename(file.Filename))
		mediaRef, err = h.storage.Put(c.Request.Context(), data, contentType, path)
		if err != nil {
			util.Logger.Error("媒体上传失败", zap.Error(err))
			errors.HandleError(c, errors.Wrap(errors.ErrStorage, "媒体上传失败", err))
			return
		}
	}

	postID, err := h.feedService.CreatePost(c.Request.Context(), uid, content, mediaRef, mediaType, defenceCredit)
	if err != nil {
		if mediaRef != "" {
			if delErr := h.storage.Delete(c.Request.Context(), mediaRef); delErr != nil {
				util.Logger.Error("回滚媒体上传失败", zap.Error(delErr))
			}
		}
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code": 201,
		"data": gin.H{"post_id": postID},
	})
}

// DeletePost 删除帖子，托管的防御积分退还作者，媒体对象在提交后尽力删除
func (h *FeedHandler) DeletePost(c *gin.Context) {
	uid := c.GetString("uid")
	postID := c.Param("id")

	mediaRef, err := h.feedService.DeletePost(c.Request.Context(), uid, postID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	if mediaRef != "" {
		if err := h.storage.Delete(c.Request.Context(), mediaRef); err != nil {
			util.Logger.Error("删除媒体对象失败", zap.Error(err), zap.String("ref", mediaRef))
		}
	}

	errors.HandleSuccess(c, nil, "帖子删除成功")
}

// ToggleLike 翻转点赞状态
func (h *FeedHandler) ToggleLike(c *gin.Context) {
	uid := c.GetString("uid")
	postID := c.Param("id")

	liked, err := h.feedService.ToggleLike(c.Request.Context(), uid, postID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	errors.HandleSuccess(c, gin.H{"liked": liked}, "")
}

// AddComment 追加评论
func (h *FeedHandler) AddComment(c *gin.Context) {
	var commentData struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&commentData); err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "无效的请求数据", err))
		return
	}

	uid := c.GetString("uid")
	postID := c.Param("id")

	commentID, err := h.feedService.AddComment(c.Request.Context(), uid, postID, commentData.Content)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code": 201,
		"data": gin.H{"comment_id": commentID},
	})
}

// ToggleFollow 翻转关注状态
func (h *FeedHandler) ToggleFollow(c *gin.Context) {
	uid := c.GetString("uid")
	targetUID := c.Param("id")

	following, err := h.feedService.ToggleFollow(c.Request.Context(), uid, targetUID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	errors.HandleSuccess(c, gin.H{"following": following}, "")
}

// Challenge 用进攻积分把帖子设为私有
func (h *FeedHandler) Challenge(c *gin.Context) {
	var challengeData struct {
		OffenceCredit int64 `json:"offence_credit" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&challengeData); err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "无效的请求数据", err))
		return
	}

	uid := c.GetString("uid")
	postID := c.Param("id")

	if err := h.feedService.Challenge(c.Request.Context(), uid, postID, challengeData.OffenceCredit); err != nil {
		handleServiceError(c, err)
		return
	}

	errors.HandleSuccess(c, nil, "帖子已被设为私有")
}

// Restore 作者恢复帖子为公开
func (h *FeedHandler) Restore(c *gin.Context) {
	var restoreData struct {
		TopUp int64 `json:"top_up" binding:"credit_amount"`
	}
	if err := c.ShouldBindJSON(&restoreData); err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "无效的请求数据", err))
		return
	}

	uid := c.GetString("uid")
	postID := c.Param("id")

	if err := h.feedService.Restore(c.Request.Context(), uid, postID, restoreData.TopUp); err != nil {
		handleServiceError(c, err)
		return
	}

	errors.HandleSuccess(c, nil, "帖子已恢复公开")
}

// GetFeed 获取信息流
func (h *FeedHandler) GetFeed(c *gin.Context) {
	uid := c.GetString("uid")

	posts, err := h.feedService.GetFeed(c.Request.Context(), uid)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	errors.HandleSuccess(c, posts, "")
}

// GetPost 获取单个帖子
func (h *FeedHandler) GetPost(c *gin.Context) {
	uid := c.GetString("uid")
	postID := c.Param("id")

	post, err := h.feedService.GetPost(c.Request.Context(), uid, postID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	errors.HandleSuccess(c, post, "")
}

// GetUserPosts 获取某个用户的帖子列表
func (h *FeedHandler) GetUserPosts(c *gin.Context) {
	uid := c.GetString("uid")
	authorUID := c.Param("id")

	posts, err := h.feedService.GetUserPosts(c.Request.Context(), uid, authorUID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	errors.HandleSuccess(c, posts, "")
}

// GetNotifications 获取通知列表
func (h *FeedHandler) GetNotifications(c *gin.Context) {
	uid := c.GetString("uid")

	notifications, unread, err := h.feedService.GetNotifications(c.Request.Context(), uid)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	errors.HandleSuccess(c, gin.H{
		"notifications": notifications,
		"unread":        unread,
	}, "")
}

// MarkNotificationsRead 标记全部通知为已读
func (h *FeedHandler) MarkNotificationsRead(c *gin.Context) {
	uid := c.GetString("uid")

	if err := h.feedService.MarkNotificationsRead(c.Request.Context(), uid); err != nil {
		handleServiceError(c, err)
		return
	}

	errors.HandleSuccess(c, nil, "通知已标记为已读")
}

// StreamNotifications 通过 SSE 推送通知变更
// 订阅走存储边界的订阅接口，核心逻辑保持请求/响应模型
func (h *FeedHandler) StreamNotifications(c *gin.Context) {
	if h.watcher == nil {
		errors.HandleError(c, errors.New(errors.ErrBadRequest, "当前存储后端不支持通知订阅"))
		return
	}

	uid := c.GetString("uid")
	events, cancel := h.watcher.Subscribe("user/" + uid)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			var user model.User
			if err := json.Unmarshal(ev.Body, &user); err != nil {
				return true
			}
			payload, _ := json.Marshal(gin.H{
				"unread":        user.UnreadNotifications,
				"notifications": user.Notifications,
			})
			c.SSEvent("notifications", string(payload))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
