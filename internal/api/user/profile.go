package user

import (
	"fmt"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/errors"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/service"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/storage"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/util"
	"go.uber.org/zap"
)

// ProfileHandler 处理用户资料相关的HTTP请求
type ProfileHandler struct {
	userService *service.UserService
	storage     storage.MediaStorage
}

func NewProfileHandler(userService *service.UserService, mediaStorage storage.MediaStorage) *ProfileHandler {
	return &ProfileHandler{
		userService: userService,
		storage:     mediaStorage,
	}
}

// GetProfile 获取当前用户资料
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	uid := c.GetString("uid")

	user, err := h.userService.GetUserByUID(c.Request.Context(), uid)
	if err != nil {
		errors.HandleError(c, err)
		return
	}

	profile := user.Public()
	profile["email"] = user.Email
	profile["credits"] = user.Credits
	profile["unread_notifications"] = user.UnreadNotifications
	errors.HandleSuccess(c, profile, "")
}

// GetUserProfile 获取指定用户的公开资料
func (h *ProfileHandler) GetUserProfile(c *gin.Context) {
	user, err := h.userService.GetUserByUID(c.Request.Context(), c.Param("id"))
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, user.Public(), "")
}

// UpdateProfile 更新当前用户资料
func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	var profileData struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	}
	if err := c.ShouldBindJSON(&profileData); err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "无效的请求数据", err))
		return
	}

	uid := c.GetString("uid")
	if err := h.userService.UpdateProfile(c.Request.Context(), uid, profileData.Name, "", profileData.Country); err != nil {
		errors.HandleError(c, err)
		return
	}

	errors.HandleSuccess(c, nil, "资料更新成功")
}

// UploadAvatar 上传头像
func (h *ProfileHandler) UploadAvatar(c *gin.Context) {
	file, err := c.FormFile("avatar")
	if err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrBadRequest, "缺少头像文件", err))
		return
	}

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

	uid := c.GetString("uid")
	path := fmt.Sprintf("avatars/%s/%s", uid, util.GenerateUniqueFilename(file.Filename))
	ref, err := h.storage.Put(c.Request.Context(), data, file.Header.Get("Content-Type"), path)
	if err != nil {
		util.Logger.Error("头像上传失败", zap.Error(err))
		errors.HandleError(c, errors.Wrap(errors.ErrStorage, "头像上传失败", err))
		return
	}

	if err := h.userService.UpdateProfile(c.Request.Context(), uid, "", ref, ""); err != nil {
		errors.HandleError(c, err)
		return
	}

	errors.HandleSuccess(c, gin.H{"photo_url": ref}, "头像上传成功")
}
