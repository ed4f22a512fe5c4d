package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aiwuxian/tabletop/internal/models"
	"github.com/aiwuxian/tabletop/internal/services"
)

// RoleHeader 请求头中的查看者身份，"player" 为玩家视角，其余视为 DM
const RoleHeader = "X-View-Role"

type Handler struct {
	table *services.Table
	log   *slog.Logger
}

func NewHandler(table *services.Table, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{table: table, log: logger}
}

// Routes 注册全部 API 路由
func (h *Handler) Routes(r gin.IRouter) {
	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/state", h.GetState)

		// 令牌
		apiGroup.GET("/tokens", h.ListTokens)
		apiGroup.POST("/tokens", h.CreateToken)
		apiGroup.PATCH("/tokens/:id", h.UpdateToken)
		apiGroup.DELETE("/tokens/:id", h.DeleteToken)
		apiGroup.POST("/tokens/:id/duplicate", h.DuplicateToken)
		apiGroup.POST("/tokens/:id/hp", h.AdjustHP)
		apiGroup.POST("/tokens/:id/conditions", h.AddCondition)
		apiGroup.DELETE("/tokens/:id/conditions/:index", h.RemoveCondition)
		apiGroup.PUT("/selection", h.Select)

		// 预设
		apiGroup.GET("/presets", h.ListPresets)
		apiGroup.POST("/presets/:name", h.CreateFromPreset)

		// 战斗
		apiGroup.POST("/combat/toggle", h.ToggleCombat)
		apiGroup.POST("/combat/next", h.NextTurn)
		apiGroup.POST("/combat/clear", h.ClearCombat)
		apiGroup.POST("/combat/roll-all", h.RollAllInitiative)
		apiGroup.POST("/combat/tokens/:id", h.AddToCombat)
		apiGroup.DELETE("/combat/tokens/:id", h.RemoveFromCombat)
		apiGroup.POST("/combat/tokens/:id/initiative", h.RollInitiative)
		apiGroup.PUT("/combat/tokens/:id/initiative", h.SetInitiative)

		// 骰子与聊天
		apiGroup.POST("/dice", h.RollDice)
		apiGroup.GET("/dice/last", h.LastRoll)
		apiGroup.GET("/chat", h.ListMessages)
		apiGroup.POST("/chat", h.SubmitChat)
		apiGroup.DELETE("/chat", h.ClearChat)

		// 笔记
		apiGroup.GET("/notes", h.ListNotes)
		apiGroup.POST("/notes", h.CreateNote)
		apiGroup.PUT("/notes/:id", h.UpdateNote)
		apiGroup.DELETE("/notes/:id", h.DeleteNote)

		// 导入导出
		apiGroup.GET("/export", h.Export)
		apiGroup.POST("/import", h.Import)
		apiGroup.DELETE("/data", h.ClearAll)
	}
}

func viewRole(c *gin.Context) models.Role {
	if c.GetHeader(RoleHeader) == string(models.RolePlayer) {
		return models.RolePlayer
	}
	return models.RoleDM
}

// fail 将服务层错误映射为 HTTP 状态码
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrParse):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrConfirmationRequired):
		status = http.StatusConflict
	default:
		h.log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
}

// GetState 获取当前视角下的完整状态
func (h *Handler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.table.Snapshot(viewRole(c)))
}

// ListTokens 获取令牌列表，支持 type 与 search 过滤
func (h *Handler) ListTokens(c *gin.Context) {
	c.JSON(http.StatusOK, h.table.ListTokens(models.TokenFilter{
		Role:   viewRole(c),
		Type:   models.TokenType(c.Query("type")),
		Search: c.Query("search"),
	}))
}

// CreateToken 创建令牌
func (h *Handler) CreateToken(c *gin.Context) {
	var spec models.TokenSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		badRequest(c)
		return
	}
	h.respondToken(c, http.StatusCreated, h.table.CreateToken(spec))
}

// UpdateToken 局部更新令牌
func (h *Handler) UpdateToken(c *gin.Context) {
	var patch models.TokenPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c)
		return
	}
	id := c.Param("id")
	if err := h.table.UpdateToken(id, patch); err != nil {
		h.fail(c, err)
		return
	}
	h.respondToken(c, http.StatusOK, id)
}

// DeleteToken 删除令牌
func (h *Handler) DeleteToken(c *gin.Context) {
	cleared, err := h.table.DeleteToken(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "selection_cleared": cleared})
}

// DuplicateToken 复制令牌
func (h *Handler) DuplicateToken(c *gin.Context) {
	id, err := h.table.DuplicateToken(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondToken(c, http.StatusCreated, id)
}

// AdjustHP 伤害或治疗
func (h *Handler) AdjustHP(c *gin.Context) {
	var req struct {
		Delta *int `json:"delta"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Delta == nil {
		badRequest(c)
		return
	}
	hp, err := h.table.AdjustHP(c.Param("id"), *req.Delta)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hp": hp})
}

// AddCondition 添加状态
func (h *Handler) AddCondition(c *gin.Context) {
	var req struct {
		Condition string `json:"condition"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	id := c.Param("id")
	if err := h.table.AddCondition(id, req.Condition); err != nil {
		h.fail(c, err)
		return
	}
	h.respondToken(c, http.StatusOK, id)
}

// RemoveCondition 移除状态
func (h *Handler) RemoveCondition(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid condition index"})
		return
	}
	id := c.Param("id")
	if err := h.table.RemoveCondition(id, index); err != nil {
		h.fail(c, err)
		return
	}
	h.respondToken(c, http.StatusOK, id)
}

// Select 设置选中令牌，token_id 为空时清除
func (h *Handler) Select(c *gin.Context) {
	var req struct {
		TokenID string `json:"token_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	if err := h.table.Select(req.TokenID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"selected_token": req.TokenID})
}

func (h *Handler) respondToken(c *gin.Context, status int, id string) {
	tok, err := h.table.Token(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, tok)
}

// ListPresets 获取预设模板
func (h *Handler) ListPresets(c *gin.Context) {
	c.JSON(http.StatusOK, models.Presets)
}

// CreateFromPreset 按预设创建令牌
func (h *Handler) CreateFromPreset(c *gin.Context) {
	id, err := h.table.CreateFromPreset(c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondToken(c, http.StatusCreated, id)
}

// ToggleCombat 开始或结束战斗
func (h *Handler) ToggleCombat(c *gin.Context) {
	h.table.ToggleCombat()
	c.JSON(http.StatusOK, h.table.Combat())
}

// NextTurn 推进回合；先攻顺序为空时 active 为 null
func (h *Handler) NextTurn(c *gin.Context) {
	active, ok := h.table.NextTurn()
	resp := gin.H{"combat": h.table.Combat(), "active": nil}
	if ok {
		resp["active"] = active
	}
	c.JSON(http.StatusOK, resp)
}

// ClearCombat 清空先攻顺序
func (h *Handler) ClearCombat(c *gin.Context) {
	h.table.ClearCombat()
	c.JSON(http.StatusOK, h.table.Combat())
}

// RollAllInitiative 全体投先攻
func (h *Handler) RollAllInitiative(c *gin.Context) {
	rolled := h.table.RollAllInitiative()
	c.JSON(http.StatusOK, gin.H{"rolled": rolled, "combat": h.table.Combat()})
}

// AddToCombat 加入战斗
func (h *Handler) AddToCombat(c *gin.Context) {
	if err := h.table.AddToCombat(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.table.Combat())
}

// RemoveFromCombat 移出战斗
func (h *Handler) RemoveFromCombat(c *gin.Context) {
	if err := h.table.RemoveFromCombat(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.table.Combat())
}

// RollInitiative 为单个令牌投先攻
func (h *Handler) RollInitiative(c *gin.Context) {
	value, err := h.table.RollInitiative(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"initiative": value})
}

// SetInitiative 手动输入先攻值，无法解析时使用默认值
func (h *Handler) SetInitiative(c *gin.Context) {
	var req struct {
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	value, err := h.table.SetInitiative(c.Param("id"), services.ParseInitiative(req.Value))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"initiative": value})
}

// RollDice 投骰（骰子面板）
func (h *Handler) RollDice(c *gin.Context) {
	var req struct {
		Count       int    `json:"count"`
		Sides       int    `json:"sides"`
		Modifier    int    `json:"modifier"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	roll, err := h.table.RollDice(viewRole(c), req.Count, req.Sides, req.Modifier, req.Description)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roll": roll, "max": roll.IsMax()})
}

// LastRoll 当前显示中的投骰结果；已过期时返回 204
func (h *Handler) LastRoll(c *gin.Context) {
	display := h.table.LastRoll()
	if display == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, display)
}

// ListMessages 获取聊天记录
func (h *Handler) ListMessages(c *gin.Context) {
	c.JSON(http.StatusOK, h.table.Messages())
}

// SubmitChat 发送聊天，投骰指令会被解析执行
func (h *Handler) SubmitChat(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	msg, err := h.table.SubmitChat(viewRole(c), req.Text)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// ClearChat 清空聊天
func (h *Handler) ClearChat(c *gin.Context) {
	h.table.ClearChat()
	c.Status(http.StatusNoContent)
}

// ListNotes 笔记列表
func (h *Handler) ListNotes(c *gin.Context) {
	c.JSON(http.StatusOK, h.table.ListNotes(models.NoteQuery{
		Role:     viewRole(c),
		Category: c.Query("category"),
		Search:   c.Query("search"),
		Sort:     models.NoteSort(c.Query("sort")),
	}))
}

// CreateNote 新建笔记
func (h *Handler) CreateNote(c *gin.Context) {
	var req struct {
		Text      string `json:"text"`
		Category  string `json:"category"`
		IsPrivate bool   `json:"isPrivate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	note, err := h.table.CreateNote(viewRole(c), req.Text, req.Category, req.IsPrivate)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, note)
}

// UpdateNote 修改笔记正文
func (h *Handler) UpdateNote(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	note, err := h.table.UpdateNote(c.Param("id"), req.Text)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

// DeleteNote 删除笔记
func (h *Handler) DeleteNote(c *gin.Context) {
	if err := h.table.DeleteNote(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Export 下载会话文件
func (h *Handler) Export(c *gin.Context) {
	data, err := h.table.Export()
	if err != nil {
		h.fail(c, err)
		return
	}
	filename := fmt.Sprintf("vtt-session-%s.json", time.Now().UTC().Format(time.DateOnly))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/json", data)
}

// Import 导入会话文件，需要 confirm=true 才会覆盖当前数据
func (h *Handler) Import(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		badRequest(c)
		return
	}
	bundle, err := h.table.Import(data, c.Query("confirm") == "true")
	if errors.Is(err, services.ErrConfirmationRequired) {
		c.JSON(http.StatusConflict, gin.H{
			"error":         err.Error(),
			"tokens":        len(bundle.Tokens),
			"combat_order":  len(bundle.CombatOrder),
			"notes":         len(bundle.Notes),
			"chat_messages": len(bundle.ChatMessages),
		})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.table.Snapshot(viewRole(c)))
}

// ClearAll 删除全部数据，需要 confirm=true
func (h *Handler) ClearAll(c *gin.Context) {
	if c.Query("confirm") != "true" {
		h.fail(c, services.ErrConfirmationRequired)
		return
	}
	h.table.ClearAll()
	c.Status(http.StatusNoContent)
}
