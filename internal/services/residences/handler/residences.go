package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"estatecare-system/internal/database/models"
)

const (
	RESIDENCE_TREE_CACHE_KEY = "residences:tree"
	CACHE_TTL_MEDIUM         = 30 * time.Minute
)

type ResidenceHandler struct {
	db     *gorm.DB
	redis  *redis.Client
	logger *zap.Logger
}

func NewResidenceHandler(db *gorm.DB, redisClient *redis.Client, logger *zap.Logger) *ResidenceHandler {
	return &ResidenceHandler{
		db:     db,
		redis:  redisClient,
		logger: logger,
	}
}

func (s *ResidenceHandler) invalidateTreeCache(c *gin.Context) {
	if s.redis != nil {
		_ = s.redis.Del(c.Request.Context(), RESIDENCE_TREE_CACHE_KEY)
	}
}

func (s *ResidenceHandler) fail(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   message,
	})
}

func (s *ResidenceHandler) ok(c *gin.Context, code int, data interface{}) {
	c.JSON(code, gin.H{
		"success": true,
		"data":    data,
	})
}

// -- Complexes --

type CreateComplexRequest struct {
	Name   string  `json:"name" binding:"required"`
	NameAr string  `json:"name_ar"`
	City   *string `json:"city"`
}

func (s *ResidenceHandler) CreateComplex(c *gin.Context) {
	var req CreateComplexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "name is required")
		return
	}

	complexDoc := models.Complex{
		ID:       uuid.NewString(),
		Name:     req.Name,
		NameAr:   req.NameAr,
		City:     req.City,
		IsActive: true,
	}

	if err := s.db.Create(&complexDoc).Error; err != nil {
		s.logger.Error("failed to create complex", zap.Error(err))
		s.fail(c, http.StatusInternalServerError, "Failed to create complex")
		return
	}

	s.invalidateTreeCache(c)
	s.ok(c, http.StatusCreated, complexDoc)
}

func (s *ResidenceHandler) ListComplexes(c *gin.Context) {
	var complexes []models.Complex

	query := s.db.Order("name")
	if c.Query("tree") == "true" {
		query = query.
			Preload("Buildings").
			Preload("Buildings.Floors").
			Preload("Buildings.Floors.Rooms").
			Preload("Buildings.Floors.Rooms.Facilities")
	}

	if err := query.Find(&complexes).Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}

	s.ok(c, http.StatusOK, complexes)
}

func (s *ResidenceHandler) GetComplex(c *gin.Context) {
	var complexDoc models.Complex
	err := s.db.
		Preload("Buildings").
		Preload("Buildings.Floors").
		Preload("Buildings.Floors.Rooms").
		Preload("Buildings.Floors.Rooms.Facilities").
		First(&complexDoc, "id = ?", c.Param("id")).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			s.fail(c, http.StatusNotFound, "Complex not found")
			return
		}
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}

	s.ok(c, http.StatusOK, complexDoc)
}

type UpdateComplexRequest struct {
	Name     *string `json:"name"`
	NameAr   *string `json:"name_ar"`
	City     *string `json:"city"`
	IsActive *bool   `json:"is_active"`
}

func (s *ResidenceHandler) UpdateComplex(c *gin.Context) {
	var complexDoc models.Complex
	if err := s.db.First(&complexDoc, "id = ?", c.Param("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			s.fail(c, http.StatusNotFound, "Complex not found")
			return
		}
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}

	var req UpdateComplexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Name != nil {
		complexDoc.Name = *req.Name
	}
	if req.NameAr != nil {
		complexDoc.NameAr = *req.NameAr
	}
	if req.City != nil {
		complexDoc.City = req.City
	}
	if req.IsActive != nil {
		complexDoc.IsActive = *req.IsActive
	}

	if err := s.db.Save(&complexDoc).Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to update complex")
		return
	}

	s.invalidateTreeCache(c)
	s.ok(c, http.StatusOK, complexDoc)
}

func (s *ResidenceHandler) DeleteComplex(c *gin.Context) {
	id := c.Param("id")

	var children int64
	if err := s.db.Model(&models.Building{}).Where("complex_id = ?", id).Count(&children).Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}
	if children > 0 {
		s.fail(c, http.StatusConflict, "Complex still has buildings")
		return
	}

	var stocks int64
	if err := s.db.Model(&models.ResidenceStock{}).Where("residence_id = ? AND quantity > 0", id).Count(&stocks).Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}
	if stocks > 0 {
		s.fail(c, http.StatusConflict, "Complex still holds stock")
		return
	}

	result := s.db.Delete(&models.Complex{}, "id = ?", id)
	if result.Error != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to delete complex")
		return
	}
	if result.RowsAffected == 0 {
		s.fail(c, http.StatusNotFound, "Complex not found")
		return
	}

	s.invalidateTreeCache(c)
	s.ok(c, http.StatusOK, gin.H{"deleted": id})
}

// -- Buildings --

type CreateBuildingRequest struct {
	ComplexID string `json:"complex_id" binding:"required"`
	Name      string `json:"name" binding:"required"`
}

func (s *ResidenceHandler) CreateBuilding(c *gin.Context) {
	var req CreateBuildingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "complex_id and name are required")
		return
	}

	if err := s.db.First(&models.Complex{}, "id = ?", req.ComplexID).Error; err != nil {
		s.fail(c, http.StatusNotFound, "Complex not found")
		return
	}

	building := models.Building{
		ID:        uuid.NewString(),
		ComplexID: req.ComplexID,
		Name:      req.Name,
	}

	if err := s.db.Create(&building).Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to create building")
		return
	}

	s.invalidateTreeCache(c)
	s.ok(c, http.StatusCreated, building)
}

func (s *ResidenceHandler) ListBuildings(c *gin.Context) {
	var buildings []models.Building
	query := s.db.Order("name")
	if complexID := c.Query("complex_id"); complexID != "" {
		query = query.Where("complex_id = ?", complexID)
	}
	if err := query.Find(&buildings).Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}
	s.ok(c, http.StatusOK, buildings)
}

func (s *ResidenceHandler) DeleteBuilding(c *gin.Context) {
	id := c.Param("id")

	var children int64
	if err := s.db.Model(&models.Floor{}).Where("building_id = ?", id).Count(&children).Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}
	if children > 0 {
		s.fail(c, http.StatusConflict, "Building still has floors")
		return
	}

	result := s.db.Delete(&models.Building{}, "id = ?", id)
	if result.Error != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to delete building")
		return
	}
	if result.RowsAffected == 0 {
		s.fail(c, http.StatusNotFound, "Building not found")
		return
	}

	s.invalidateTreeCache(c)
	s.ok(c, http.StatusOK, gin.H{"deleted": id})
}

// -- Floors --

type CreateFloorRequest struct {
	BuildingID string `json:"building_id" binding:"required"`
	Name       string `json:"name" binding:"required"`
	Level      int32  `json:"level"`
}

func (s *ResidenceHandler) CreateFloor(c *gin.Context) {
	var req CreateFloorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "building_id and name are required")
		return
	}

	if err := s.db.First(&models.Building{}, "id = ?", req.BuildingID).Error; err != nil {
		s.fail(c, http.StatusNotFound, "Building not found")
		return
	}

	floor := models.Floor{
		ID:         uuid.NewString(),
		BuildingID: req.BuildingID,
		Name:       req.Name,
		Level:      req.Level,
	}

	if err := s.db.Create(&floor).Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to create floor")
		return
	}

	s.invalidateTreeCache(c)
	s.ok(c, http.StatusCreated, floor)
}

func (s *ResidenceHandler) ListFloors(c *gin.Context) {
	var floors []models.Floor
	query := s.db.Order("level")
	if buildingID := c.Query("building_id"); buildingID != "" {
		query = query.Where("building_id = ?", buildingID)
	}
	if err := query.Find(&floors).Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}
	s.ok(c, http.StatusOK, floors)
}

func (s *ResidenceHandler) DeleteFloor(c *gin.Context) {
	id := c.Param("id")

	var children int64
	if err := s.db.Model(&models.Room{}).Where("floor_id = ?", id).Count(&children).Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}
	if children > 0 {
		s.fail(c, http.StatusConflict, "Floor still has rooms")
		return
	}

	result := s.db.Delete(&models.Floor{}, "id = ?", id)
	if result.Error != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to delete floor")
		return
	}
	if result.RowsAffected == 0 {
		s.fail(c, http.StatusNotFound, "Floor not found")
		return
	}

	s.invalidateTreeCache(c)
	s.ok(c, http.StatusOK, gin.H{"deleted": id})
}

// -- Rooms --

type CreateRoomRequest struct {
	FloorID  string `json:"floor_id" binding:"required"`
	Name     string `json:"name" binding:"required"`
	RoomType string `json:"room_type"`
}

func (s *ResidenceHandler) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "floor_id and name are required")
		return
	}

	if err := s.db.First(&models.Floor{}, "id = ?", req.FloorID).Error; err != nil {
		s.fail(c, http.StatusNotFound, "Floor not found")
		return
	}

	room := models.Room{
		ID:       uuid.NewString(),
		FloorID:  req.FloorID,
		Name:     req.Name,
		RoomType: req.RoomType,
	}

	if err := s.db.Create(&room).Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to create room")
		return
	}

	s.invalidateTreeCache(c)
	s.ok(c, http.StatusCreated, room)
}

func (s *ResidenceHandler) ListRooms(c *gin.Context) {
	var rooms []models.Room
	query := s.db.Order("name")
	if floorID := c.Query("floor_id"); floorID != "" {
		query = query.Where("floor_id = ?", floorID)
	}
	if err := query.Preload("Facilities").Find(&rooms).Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}
	s.ok(c, http.StatusOK, rooms)
}

func (s *ResidenceHandler) DeleteRoom(c *gin.Context) {
	id := c.Param("id")

	var children int64
	if err := s.db.Model(&models.Facility{}).Where("room_id = ?", id).Count(&children).Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}
	if children > 0 {
		s.fail(c, http.StatusConflict, "Room still has facilities")
		return
	}

	result := s.db.Delete(&models.Room{}, "id = ?", id)
	if result.Error != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to delete room")
		return
	}
	if result.RowsAffected == 0 {
		s.fail(c, http.StatusNotFound, "Room not found")
		return
	}

	s.invalidateTreeCache(c)
	s.ok(c, http.StatusOK, gin.H{"deleted": id})
}

// -- Facilities --

type CreateFacilityRequest struct {
	RoomID string `json:"room_id" binding:"required"`
	Name   string `json:"name" binding:"required"`
}

func (s *ResidenceHandler) CreateFacility(c *gin.Context) {
	var req CreateFacilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "room_id and name are required")
		return
	}

	if err := s.db.First(&models.Room{}, "id = ?", req.RoomID).Error; err != nil {
		s.fail(c, http.StatusNotFound, "Room not found")
		return
	}

	facility := models.Facility{
		ID:     uuid.NewString(),
		RoomID: req.RoomID,
		Name:   req.Name,
	}

	if err := s.db.Create(&facility).Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to create facility")
		return
	}

	s.invalidateTreeCache(c)
	s.ok(c, http.StatusCreated, facility)
}

func (s *ResidenceHandler) DeleteFacility(c *gin.Context) {
	result := s.db.Delete(&models.Facility{}, "id = ?", c.Param("id"))
	if result.Error != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to delete facility")
		return
	}
	if result.RowsAffected == 0 {
		s.fail(c, http.StatusNotFound, "Facility not found")
		return
	}

	s.invalidateTreeCache(c)
	s.ok(c, http.StatusOK, gin.H{"deleted": c.Param("id")})
}
