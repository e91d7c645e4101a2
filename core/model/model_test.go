package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusValid(t *testing.T) {
	for _, s := range JobStatuses() {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, JobStatus("LOST").Valid())
	_, err := ParseJobStatus("LOST")
	assert.Error(t, err)
	s, err := ParseJobStatus("IN_TRANSIT")
	require.NoError(t, err)
	assert.Equal(t, StatusInTransit, s)
}

func TestJobStatusTerminal(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusReturned.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusScheduled.Terminal())
}

func TestDriverStatusRank(t *testing.T) {
	assert.Less(t, DriverEnRoute.Rank(), DriverArrived.Rank())
	assert.Equal(t, -1, DriverProblem.Rank())
	assert.True(t, DriverProblem.Valid())
	_, err := ParseDriverStatus("NAPPING")
	assert.Error(t, err)
}

func TestJobCloneIsDeep(t *testing.T) {
	now := time.Now()
	j := Job{PODFiles: []string{"a"}, JobPhotos: []Photo{{URL: "a"}}, ActualArrivalTime: &now}
	c := j.Clone()
	c.PODFiles[0] = "b"
	c.JobPhotos[0].URL = "b"
	*c.ActualArrivalTime = now.Add(time.Hour)
	assert.Equal(t, "a", j.PODFiles[0])
	assert.Equal(t, "a", j.JobPhotos[0].URL)
	assert.Equal(t, now, *j.ActualArrivalTime)
}

func TestUserLinkedTo(t *testing.T) {
	u := User{CustomerID: "c1", AdditionalCustomerIDs: []string{"c2"}}
	assert.True(t, u.LinkedTo("c1"))
	assert.True(t, u.LinkedTo("c2"))
	assert.False(t, u.LinkedTo("c3"))
	assert.False(t, u.LinkedTo(""))
	assert.True(t, User{Role: RoleAdmin}.IsDispatcher())
	assert.False(t, User{Role: RoleDriver}.IsDispatcher())
}

func TestTruckCapacityAndDay(t *testing.T) {
	assert.Equal(t, 10000.0, Truck{CapacityTonnes: 10}.CapacityKg())
	ts := time.Date(2024, 5, 3, 17, 4, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC), Day(ts))
}
