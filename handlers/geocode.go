package handlers

import (
	"errors"
	"go-pulsemap/geocode"
	"go-pulsemap/types"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func ReverseGeocode(c *gin.Context, geocoder ReverseGeocoder, logger *zap.Logger) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		failure(c, http.StatusBadRequest, "lat and lng must be valid coordinates", nil)
		return
	}

	coords := types.Coordinates{Lat: lat, Lng: lng}
	address, err := geocoder.Reverse(c.Request.Context(), coords)
	if errors.Is(err, geocode.ErrNotConfigured) {
		failure(c, http.StatusServiceUnavailable, "Geocoding is not configured", nil)
		return
	}
	if err != nil {
		logger.Warn("Reverse geocode failed", zap.Float64("lat", lat), zap.Float64("lng", lng), zap.Error(err))
		failure(c, http.StatusBadGateway, "Reverse geocoding failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"coordinates": coords,
		"address":     address,
	})
}
