package stations

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/khaledhegab/ets-backend-final/internal/models"
)

// RedisLocator serves nearest-station queries from a Redis GEO set. The
// set and the metadata hashes are loaded at startup from the station
// directory and never change while the process runs.
type RedisLocator struct {
	client *redis.Client
	key    string
}

func NewRedisLocator(addr, password, key string) *RedisLocator {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisLocator{client: c, key: key}
}

// Load populates the GEO set and metadata hashes.
func (r *RedisLocator) Load(ctx context.Context, all []models.Station) error {
	for _, s := range all {
		if s.Loc.Lat == 0 && s.Loc.Lon == 0 {
			continue
		}
		if err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
			Longitude: s.Loc.Lon,
			Latitude:  s.Loc.Lat,
			Name:      strconv.Itoa(s.ID),
		}).Err(); err != nil {
			return fmt.Errorf("geoadd station %d: %w", s.ID, err)
		}
		if err := r.client.HSet(ctx, metaKey(s.ID), map[string]interface{}{
			"name_en": s.NameEN,
			"name_ar": s.NameAR,
			"line":    s.LineNumber,
		}).Err(); err != nil {
			return fmt.Errorf("station %d meta: %w", s.ID, err)
		}
	}
	return nil
}

func (r *RedisLocator) Nearest(ctx context.Context, loc models.Coord) (models.Station, float64, error) {
	res, err := r.client.GeoRadius(ctx, r.key, loc.Lon, loc.Lat, &redis.GeoRadiusQuery{
		Radius: 100, Unit: "km", WithCoord: true, WithDist: true, Count: 1, Sort: "ASC",
	}).Result()
	if err != nil {
		return models.Station{}, 0, err
	}
	if len(res) == 0 {
		return models.Station{}, 0, ErrStationNotFound
	}

	g := res[0]
	id, err := strconv.Atoi(g.Name)
	if err != nil {
		return models.Station{}, 0, fmt.Errorf("bad station member %q: %w", g.Name, err)
	}
	s := models.Station{ID: id, Loc: models.Coord{Lat: g.Latitude, Lon: g.Longitude}}
	if m, err := r.client.HGetAll(ctx, metaKey(id)).Result(); err == nil {
		s.NameEN = m["name_en"]
		s.NameAR = m["name_ar"]
		if line, ok := m["line"]; ok {
			s.LineNumber, _ = strconv.Atoi(line)
		}
	}
	return s, g.Dist, nil
}

func (r *RedisLocator) Close() error { return r.client.Close() }

func metaKey(id int) string { return "station:meta:" + strconv.Itoa(id) }
