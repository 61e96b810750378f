package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/model"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/service/errors"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/store/interfaces"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/store/memory"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/util"
)

func TestMain(m *testing.M) {
	util.InitLogger("error")
	os.Exit(m.Run())
}

// seedUser 直接向存储写入一个用户文档
func seedUser(t *testing.T, store *memory.Store, uid string, credits int64) {
	t.Helper()
	user := &model.User{
		UID:           uid,
		Username:      uid,
		Name:          uid,
		Email:         uid + "@example.com",
		Credits:       credits,
		Followers:     []string{},
		Following:     []string{},
		Notifications: []model.Notification{},
		CreatedAt:     time.Now(),
	}
	body, err := json.Marshal(user)
	assert.NoError(t, err)
	assert.NoError(t, store.Commit(context.Background(), nil,
		[]interfaces.Write{{Key: userKey(uid), Body: body}}))
}

func loadUser(t *testing.T, store *memory.Store, uid string) *model.User {
	t.Helper()
	doc, err := store.Get(context.Background(), userKey(uid))
	assert.NoError(t, err)
	assert.NotNil(t, doc.Body)
	var user model.User
	assert.NoError(t, json.Unmarshal(doc.Body, &user))
	return &user
}

// loadPost 读取帖子文档，不存在时返回 nil
func loadPost(t *testing.T, store *memory.Store, postID string) *model.Post {
	t.Helper()
	doc, err := store.Get(context.Background(), postKey(postID))
	assert.NoError(t, err)
	if doc.Body == nil {
		return nil
	}
	var post model.Post
	assert.NoError(t, json.Unmarshal(doc.Body, &post))
	return &post
}

func newTestService() (*FeedService, *memory.Store) {
	store := memory.NewStore()
	return NewFeedService(store), store
}

func TestCreatePost_FixedReward(t *testing.T) {
	svc, store := newTestService()
	seedUser(t, store, "alice", 0)

	// 发帖不托管防御积分：作者净收入为固定奖励
	postID, err := svc.CreatePost(context.Background(), "alice", "hello", "", "", 0)
	assert.NoError(t, err)
	assert.NotEmpty(t, postID)

	author := loadUser(t, store, "alice")
	assert.Equal(t, int64(10), author.Credits)

	post := loadPost(t, store, postID)
	assert.NotNil(t, post)
	assert.Equal(t, "alice", post.AuthorID)
	assert.False(t, post.IsPrivate)
	assert.Equal(t, int64(0), post.DefenceCredit)
	assert.Empty(t, post.Likes)
	assert.Empty(t, post.Comments)
}

func TestCreatePost_EscrowsDefenceCredit(t *testing.T) {
	svc, store := newTestService()
	seedUser(t, store, "alice", 20)

	// 净变化为 10 - 5 = +5
	postID, err := svc.CreatePost(context.Background(), "alice", "defended", "", "", 5)
	assert.NoError(t, err)

	author := loadUser(t, store, "alice")
	assert.Equal(t, int64(25), author.Credits)

	post := loadPost(t, store, postID)
	assert.Equal(t, int64(5), post.DefenceCredit)
}

func TestCreatePost_InsufficientCredits(t *testing.T) {
	svc, store := newTestService()
	seedUser(t, store, "alice", 3)

	// 净变化为 10 - 20 = -17，余额不足，事务整体失败
	_, err := svc.CreatePost(context.Background(), "alice", "too expensive", "", "", 20)
	assert.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrInsufficientCredits))

	// 余额没有被部分扣除，帖子也没有写入
	author := loadUser(t, store, "alice")
	assert.Equal(t, int64(3), author.Credits)

	posts, err := svc.GetFeed(context.Background(), "alice")
	assert.NoError(t, err)
	assert.Empty(t, posts)
}

func TestCreatePost_InvalidInput(t *testing.T) {
	svc, store := newTestService()
	seedUser(t, store, "alice", 0)

	_, err := svc.CreatePost(context.Background(), "alice", "x", "", "", -1)
	assert.True(t, errors.IsCode(err, errors.ErrInvalidInput))

	_, err = svc.CreatePost(context.Background(), "alice", "   ", "", "", 0)
	assert.True(t, errors.IsCode(err, errors.ErrInvalidInput))

	// 只有媒体没有文字是允许的
	_, err = svc.CreatePost(context.Background(), "alice", "", "/uploads/posts/alice/a.jpg", "image", 0)
	assert.NoError(t, err)
}

func TestCreatePost_AuthorNotFound(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreatePost(context.Background(), "ghost", "hello", "", "", 0)
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))
}

func TestToggleLike_NotifiesAuthor(t *testing.T) {
	svc, store := newTestService()
	seedUser(t, store, "alice", 0)
	seedUser(t, store, "bob", 0)

	postID, err := svc.CreatePost(context.Background(), "alice", "hello", "", "", 0)
	assert.NoError(t, err)

	liked, err := svc.ToggleLike(context.Background(), "bob", postID)
	assert.NoError(t, err)
	assert.True(t, liked)

	post := loadPost(t, store, postID)
	assert.Equal(t, []string{"bob"}, post.Likes)

	// 作者收到点赞通知并置未读标记
	author := loadUser(t, store, "alice")
	assert.True(t, author.UnreadNotifications)
	assert.Len(t, author.Notifications, 1)
	assert.Equal(t, model.NotificationLike, author.Notifications[0].Kind)
	assert.Equal(t, "bob", author.Notifications[0].SenderID)
	assert.Equal(t, postID, author.Notifications[0].PostID)

	// 取消点赞撤回对应通知
	liked, err = svc.ToggleLike(context.Background(), "bob", postID)
	assert.NoError(t, err)
	assert.False(t, liked)

	post = loadPost(t, store, postID)
	assert.Empty(t, post.Likes)

	author = loadUser(t, store, "alice")
	assert.Empty(t, author.Notifications)
}

func TestToggleLike_SelfLikeNoNotification(t *testing.T) {
	svc, store := newTestService()
	seedUser(t, store, "alice", 0)

	postID, err := svc.CreatePost(context.Background(), "alice", "hello", "", "", 0)
	assert.NoError(t, err)

	liked, err := svc.ToggleLike(context.Background(), "alice", postID)
	assert.NoError(t, err)
	assert.True(t, liked)

	post := loadPost(t, store, postID)
	assert.Equal(t, []string{"alice"}, post.Likes)

	// 自己点赞自己的帖子不产生通知
	author := loadUser(t, store, "alice")
	assert.Empty(t, author.Notifications)
	assert.False(t, author.UnreadNotifications)
}

func TestToggleLike_Idempotent(t *testing.T) {
	svc, store := newTestService()
	seedUser(t, store, "alice", 0)
	seedUser(t, store, "bob", 0)

	postID, err := svc.CreatePost(context.Background(), "alice", "hello", "", "", 0)
	assert.NoError(t, err)

	// 偶数次翻转回到初始状态
	for i := 0; i < 4; i++ {
		_, err := svc.ToggleLike(context.Background(), "bob", postID)
		assert.NoError(t, err)
	}

	post := loadPost(t, store, postID)
	assert.Empty(t, post.Likes)

	author := loadUser(t, store, "alice")
	assert.Empty(t, author.Notifications)
}

func TestToggleFollow_MirrorConsistency(t *testing.T) {
	svc, store := newTestService()
	seedUser(t, store, "alice", 0)
	seedUser(t, store, "bob", 0)

	following, err := svc.ToggleFollow(context.Background(), "bob", "alice")
	assert.NoError(t, err)
	assert.True(t, following)

	// 两侧集合在同一个事务内一起更新
	alice := loadUser(t, store, "alice")
	bob := loadUser(t, store, "bob")
	assert.Equal(t, []string{"bob"}, alice.Followers)
	assert.Equal(t, []string{"alice"}, bob.Following)

	following, err = svc.ToggleFollow(context.Background(), "bob", "alice")
	assert.NoError(t, err)
	assert.False(t, following)

	alice = loadUser(t, store, "alice")
	bob = loadUser(t, store, "bob")
	assert.Empty(t, alice.Followers)
	assert.Empty(t, bob.Following)
}

func TestToggleFollow_SelfFollow(t *testing.T) {
	svc, store := newTestService()
	seedUser(t, store, "alice", 0)

	_, err := svc.ToggleFollow(context.Background(), "alice", "alice")
	assert.True(t, errors.IsCode(err, errors.ErrInvalidOperation))
}

func TestChallenge_MakesPostPrivate(t *testing.T) {
	svc, store := newTestService()
	seedUser(t, store, "alice", 10)
	seedUser(t, store, "carol", 30)

	postID, err := svc.CreatePost(context.Background(), "alice", "defended", "", "", 5)
	assert.NoError(t, err)
	// 发帖后 alice 余额：10 + 10 - 5 = 15

	err = svc.Challenge(context.Background(), "carol", postID, 10)
	assert.NoError(t, err)

	// 攻击者被扣除全部进攻积分
	carol := loadUser(t, store, "carol")
	assert.Equal(t, int64(20), carol.Credits)

	// 作者只收回挑战前托管的防御积分，差额退出流通
	alice := loadUser(t, store, "alice")
	assert.Equal(t, int64(20), alice.Credits)

	post := loadPost(t, store, postID)
	assert.True(t, post.IsPrivate)
	assert.Equal(t, int64(5), post.DefenceCredit)

	// 作者收到帖子被设为私有的通知
	assert.True(t, alice.UnreadNotifications)
	assert.Equal(t, model.NotificationPostMadePrivate, alice.Notifications[0].Kind)
	assert.Equal(t, "carol", alice.Notifications[0].SenderID)
}

func TestChallenge_OffenceMustExceedDefence(t *testing.T) {
	svc, store := newTestService()
	seedUser(t, store, "alice", 0)
	seedUser(t, store, "carol", 30)

	postID, err := svc.CreatePost(context.Background(), "alice", "defended", "", "", 5)
	assert.NoError(t, err)

	// 相等不够，必须严格大于
	err = svc.Challenge(context.Background(), "carol", postID, 5)
	assert.True(t, errors.IsCode(err, errors.ErrInvalidChallenge))

	carol := loadUser(t, store, "carol")
	assert.Equal(t, int64(30), carol.Credits)

	post := loadPost(t, store, postID)
	assert.False(t, post.IsPrivate)
}

func TestChallenge_OwnPost(t *testing.T) {
	svc, store := newTestService()
	seedUser(t, store, "alice", 100)

	postID, err := svc.CreatePost(context.Background(), "alice", "mine", "", "", 0)
	assert.NoError(t, err)

	err = svc.Challenge(context.Background(), "alice", postID, 5)
	assert.True(t, errors.IsCode(err, errors.ErrInvalidChallenge))
}

func TestChallenge_InsufficientCredits(t *testing.T) {
	svc, store := newTestService()
	seedUser(t, store, "alice", 0)
	seedUser(t, store, "carol", 3)

	postID, err := svc.CreatePost(context.Background(), "alice", "hello", "", "", 0)
	assert.NoError(t, err)

	err = svc.Challenge(context.Background(), "carol", postID, 5)
	assert.True(t, errors.IsCode(err, errors.ErrInsufficientCredits))

	// 双方余额都没有变化
	carol := loadUser(t, store, "carol")
	assert.Equal(t, int64(3), carol.Credits)
	alice := loadUser(t, store, "alice")
	assert.Equal(t, int64(10), alice.Credits)

	post := loadPost(t, store, postID)
	assert.False(t, post.IsPrivate)
}

func TestChallenge_DestroysDifference(t *testing.T) {
	svc, store := newTestService()
	seedUser(t, store, "alice", 0)
	seedUser(t, store, "carol", 30)

	postID, err := svc.CreatePost(context.Background(), "alice", "defended", "", "", 5)
	assert.NoError(t, err)

	totalBefore := loadUser(t, store, "alice").Credits + loadUser(t, store, "carol").Credits

	err = svc.Challenge(context.Background(), "carol", postID, 12)
	assert.NoError(t, err)

	// 进攻积分与托管防御积分的差额直接退出流通
	totalAfter := loadUser(t, store, "alice").Credits + loadUser(t, store, "carol").Credits
	assert.Equal(t, totalBefore-(12-5), totalAfter)
}

func TestRestore_MakesPostPublic(t *testing.T) {
	svc, store := newTestService()
	seedUser(t, store, "alice", 10)
	seedUser(t, store, "carol", 30)

	postID, err := svc.CreatePost(context.Background(), "alice", "defended", "", "", 5)
	assert.NoError(t, err)
	assert.NoError(t, svc.Challenge(context.Background(), "carol", postID, 10))

	// alice: 10 + 10 - 5 + 5 = 20，追加 8 后剩 12
	err = svc.Restore(context.Background(), "alice", postID, 8)
	assert.NoError(t, err)

	alice := loadUser(t, store, "alice")
	assert.Equal(t, int64(12), alice.Credits)

	post := loadPost(t, store, postID)
	assert.False(t, post.IsPrivate)
	assert.Equal(t, int64(13), post.DefenceCredit)

	// 恢复公开的系统通知排在最前
	assert.Equal(t, model.NotificationPostMadePublic, alice.Notifications[0].Kind)
}

func TestRestore_OnlyAuthor(t *testing.T) {
	svc, store := newTestService()
	seedUser(t, store, "alice", 0)
	seedUser(t, store, "carol", 30)

	postID, err := svc.CreatePost(context.Background(), "alice", "hello", "", "", 0)
	assert.NoError(t, err)
	assert.NoError(t, svc.Challenge(context.Background(), "carol", postID, 5))

	err = svc.Restore(context.Background(), "carol", postID, 0)
	assert.True(t, errors.IsCode(err, errors.ErrForbidden))
}

func TestRestore_AlreadyPublic(t *testing.T) {
	svc, store := newTestService()
	seedUser(t, store, "alice", 0)

	postID, err := svc.CreatePost(context.Background(), "alice", "hello", "", "", 0)
	assert.NoError(t, err)

	err = svc.Restore(context.Background(), "alice", postID, 0)
	assert.True(t, errors.IsCode(err, errors.ErrInvalidOperation))
}

func TestDeletePost_RefundsEscrow(t *testing.T) {
	svc, store := newTestService()
	seedUser(t, store, "alice", 20)

	postID, err := svc.CreatePost(context.Background(), "alice", "defended", "", "", 5)
	assert.NoError(t, err)
	// 发帖后余额 25

	_, err = svc.DeletePost(context.Background(), "alice", postID)
	assert.NoError(t, err)

	// 托管的防御积分退还作者
	alice := loadUser(t, store, "alice")
	assert.Equal(t, int64(30), alice.Credits)
	assert.Nil(t, loadPost(t, store, postID))
}

func TestDeletePost_OnlyAuthor(t *testing.T) {
	svc, store := newTestService()
	seedUser(t, store, "alice", 0)
	seedUser(t, store, "bob", 0)

	postID, err := svc.CreatePost(context.Background(), "alice", "hello", "", "", 0)
	assert.NoError(t, err)

	_, err = svc.DeletePost(context.Background(), "bob", postID)
	assert.True(t, errors.IsCode(err, errors.ErrForbidden))
	assert.NotNil(t, loadPost(t, store, postID))
}

func TestDeletePost_ReturnsMediaRef(t *testing.T) {
	svc, store := newTestService()
	seedUser(t, store, "alice", 0)

	postID, err := svc.CreatePost(context.Background(), "alice", "", "/uploads/posts/alice/a.jpg", "image", 0)
	assert.NoError(t, err)

	mediaRef, err := svc.DeletePost(context.Background(), "alice", postID)
	assert.NoError(t, err)
	assert.Equal(t, "/uploads/posts/alice/a.jpg", mediaRef)
}

func TestAddComment(t *testing.T) {
	svc, store := newTestService()
	seedUser(t, store, "alice", 0)
	seedUser(t, store, "bob", 0)

	postID, err := svc.CreatePost(context.Background(), "alice", "hello", "", "", 0)
	assert.NoError(t, err)

	commentID, err := svc.AddComment(context.Background(), "bob", postID, "nice post")
	assert.NoError(t, err)
	assert.NotEmpty(t, commentID)

	post := loadPost(t, store, postID)
	assert.Len(t, post.Comments, 1)
	assert.Equal(t, "bob", post.Comments[0].AuthorID)
	assert.Equal(t, "nice post", post.Comments[0].Content)

	// 空白评论被拒绝
	_, err = svc.AddComment(context.Background(), "bob", postID, "   ")
	assert.True(t, errors.IsCode(err, errors.ErrInvalidInput))
}

func TestGetFeed_HidesPrivatePosts(t *testing.T) {
	svc, store := newTestService()
	seedUser(t, store, "alice", 0)
	seedUser(t, store, "bob", 0)
	seedUser(t, store, "carol", 30)

	publicID, err := svc.CreatePost(context.Background(), "alice", "public", "", "", 0)
	assert.NoError(t, err)
	privateID, err := svc.CreatePost(context.Background(), "alice", "about to hide", "", "", 0)
	assert.NoError(t, err)
	assert.NoError(t, svc.Challenge(context.Background(), "carol", privateID, 5))

	// 其他人只看到公开帖子
	posts, err := svc.GetFeed(context.Background(), "bob")
	assert.NoError(t, err)
	assert.Len(t, posts, 1)
	assert.Equal(t, publicID, posts[0].ID)

	// 作者能看到自己的私有帖子
	posts, err = svc.GetFeed(context.Background(), "alice")
	assert.NoError(t, err)
	assert.Len(t, posts, 2)

	// 私有帖子对其他人直接返回 Forbidden
	_, err = svc.GetPost(context.Background(), "bob", privateID)
	assert.True(t, errors.IsCode(err, errors.ErrForbidden))

	post, err := svc.GetPost(context.Background(), "alice", privateID)
	assert.NoError(t, err)
	assert.True(t, post.IsPrivate)
}

func TestMarkNotificationsRead(t *testing.T) {
	svc, store := newTestService()
	seedUser(t, store, "alice", 0)
	seedUser(t, store, "bob", 0)

	postID, err := svc.CreatePost(context.Background(), "alice", "hello", "", "", 0)
	assert.NoError(t, err)
	_, err = svc.ToggleLike(context.Background(), "bob", postID)
	assert.NoError(t, err)

	notifications, unread, err := svc.GetNotifications(context.Background(), "alice")
	assert.NoError(t, err)
	assert.True(t, unread)
	assert.Len(t, notifications, 1)
	assert.False(t, notifications[0].Read)

	assert.NoError(t, svc.MarkNotificationsRead(context.Background(), "alice"))

	notifications, unread, err = svc.GetNotifications(context.Background(), "alice")
	assert.NoError(t, err)
	assert.False(t, unread)
	assert.True(t, notifications[0].Read)
}

// 并发发帖：余额 25，每次净扣 10，恰好两次成功
// 失败的事务不会提交任何写入，所以版本冲突次数被成功提交数约束
func TestCreatePost_ConcurrentEscrow(t *testing.T) {
	svc, store := newTestService()
	seedUser(t, store, "alice", 25)

	const workers = 10
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.CreatePost(context.Background(), "alice",
				fmt.Sprintf("post %d", i), "", "", 20)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var succeeded, insufficient int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.IsCode(err, errors.ErrInsufficientCredits):
			insufficient++
		default:
			t.Fatalf("意外的错误: %v", err)
		}
	}

	assert.Equal(t, 2, succeeded)
	assert.Equal(t, workers-2, insufficient)

	// 25 - 10 - 10 = 5
	alice := loadUser(t, store, "alice")
	assert.Equal(t, int64(5), alice.Credits)

	posts, err := svc.GetUserPosts(context.Background(), "alice", "alice")
	assert.NoError(t, err)
	assert.Len(t, posts, 2)
}

// 随机并发操作后检查全局不变量：余额永不为负，关注关系双侧镜像一致
func TestRandomInterleaving_Invariants(t *testing.T) {
	svc, store := newTestService()

	uids := []string{"u0", "u1", "u2", "u3"}
	for _, uid := range uids {
		seedUser(t, store, uid, 20)
	}

	var postIDs []string
	var postMu sync.Mutex
	for _, uid := range uids {
		id, err := svc.CreatePost(context.Background(), uid, "seed post", "", "", 2)
		assert.NoError(t, err)
		postIDs = append(postIDs, id)
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 50; i++ {
				uid := uids[rng.Intn(len(uids))]
				postMu.Lock()
				postID := postIDs[rng.Intn(len(postIDs))]
				postMu.Unlock()

				// 业务错误（积分不足、非法挑战等）是预期结果，这里只关心不变量
				switch rng.Intn(5) {
				case 0:
					if id, err := svc.CreatePost(context.Background(), uid, "random", "", "", int64(rng.Intn(15))); err == nil {
						postMu.Lock()
						postIDs = append(postIDs, id)
						postMu.Unlock()
					}
				case 1:
					svc.ToggleLike(context.Background(), uid, postID)
				case 2:
					svc.ToggleFollow(context.Background(), uid, uids[rng.Intn(len(uids))])
				case 3:
					svc.Challenge(context.Background(), uid, postID, int64(rng.Intn(10)+1))
				case 4:
					svc.Restore(context.Background(), uid, postID, int64(rng.Intn(5)))
				}
			}
		}(int64(w))
	}
	wg.Wait()

	users := make(map[string]*model.User)
	for _, uid := range uids {
		users[uid] = loadUser(t, store, uid)
	}

	for uid, user := range users {
		assert.GreaterOrEqual(t, user.Credits, int64(0), "用户 %s 余额为负", uid)

		for _, target := range user.Following {
			assert.True(t, containsMember(users[target].Followers, uid),
				"%s 关注 %s 但对侧缺少镜像", uid, target)
		}
		for _, follower := range user.Followers {
			assert.True(t, containsMember(users[follower].Following, uid),
				"%s 的粉丝 %s 没有对应的关注记录", uid, follower)
		}
	}
}
