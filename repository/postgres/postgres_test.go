package postgres

import "testing"

func TestMarshalOrNilEmptyCollectionsAreNil(t *testing.T) {
	t.Parallel()

	if data, err := marshalOrNil([]float64{}); err != nil || data != nil {
		t.Errorf("marshalOrNil(empty slice) = (%v, %v), want (nil, nil)", data, err)
	}
	if data, err := marshalOrNil(map[string]any{}); err != nil || data != nil {
		t.Errorf("marshalOrNil(empty map) = (%v, %v), want (nil, nil)", data, err)
	}
	if data, err := marshalOrNil(nil); err != nil || data != nil {
		t.Errorf("marshalOrNil(nil) = (%v, %v), want (nil, nil)", data, err)
	}
}

func TestMarshalOrNilNonEmptyRoundTrips(t *testing.T) {
	t.Parallel()

	data, err := marshalOrNil([]float64{1.5, 2.0})
	if err != nil {
		t.Fatalf("marshalOrNil: %v", err)
	}
	if string(data) != "[1.5,2]" {
		t.Errorf("marshalOrNil([1.5, 2.0]) = %s, want [1.5,2]", data)
	}
}

func TestRedisKeyIsStablePerAddress(t *testing.T) {
	t.Parallel()

	if redisKey(42) != redisKey(42) {
		t.Error("redisKey should be deterministic for the same radio address")
	}
	if redisKey(42) == redisKey(43) {
		t.Error("redisKey should differ across radio addresses")
	}
}
