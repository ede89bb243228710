package cache

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
)

// WeatherKey identifies a provider response for a location and date window.
func WeatherKey(lat, lon float64, start, end string) string {
	return digest(formatFloat(lat) + "_" + formatFloat(lon) + "_" + start + "_" + end)
}

// ResultKey identifies a computed forecast for a request.
func ResultKey(start, end string, lat, lon float64, useWeather bool) string {
	return digest(start + "_" + end + "_" + formatFloat(lat) + "_" + formatFloat(lon) + "_" + strconv.FormatBool(useWeather))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func digest(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
