package vsphere

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmware/govmomi/simulator"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/types"
)

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		name     string
		hostname string
		want     string
		wantErr  bool
	}{
		{name: "bare host", hostname: "vc01.example.com", want: "https://vc01.example.com/sdk"},
		{name: "host and port", hostname: "10.0.0.1:8443", want: "https://10.0.0.1:8443/sdk"},
		{name: "ipv6", hostname: "[fd00::1]", want: "https://[fd00::1]/sdk"},
		{name: "empty", hostname: "", wantErr: true},
		{name: "blank", hostname: "   ", wantErr: true},
		{name: "user info", hostname: "root@vc01", wantErr: true},
		{name: "path", hostname: "vc01/ui", wantErr: true},
		{name: "query", hostname: "vc01?x=1", wantErr: true},
		{name: "fragment", hostname: "vc01#top", wantErr: true},
		{name: "bad port", hostname: "vc01:port", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := endpointURL(tt.hostname)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.String())
		})
	}
}

func TestParseMajorAPIVersion(t *testing.T) {
	tests := []struct {
		version string
		want    int
		wantErr bool
	}{
		{version: "8.0.3.0", want: 8},
		{version: "6.7", want: 6},
		{version: "4.1", want: 4},
		{version: "2.5", want: 3},
		{version: "3.0", want: 3},
		{version: "7", wantErr: true},
		{version: "", wantErr: true},
		{version: "x.1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			got, err := parseMajorAPIVersion(tt.version)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAboutInfo(t *testing.T) {
	got := aboutInfo(types.AboutInfo{
		Name:       "VMware vCenter Server",
		Version:    "8.0.3",
		ApiType:    "VirtualCenter",
		ApiVersion: "8.0.3.0",
		OsType:     "linux-x64",
	})

	assert.Equal(t, AboutInfo{
		Name:       "VMware vCenter Server",
		Version:    "8.0.3",
		APIType:    "VirtualCenter",
		APIVersion: "8.0.3.0",
		OSType:     "linux-x64",
	}, got)
}

func TestUnconnectedSession(t *testing.T) {
	ctx := context.Background()

	var nilSession *Session
	assert.NotPanics(t, func() { nilSession.Disconnect(ctx) })
	assert.False(t, nilSession.Connected())
	assert.False(t, nilSession.SetTimeout(time.Second))
	assert.Zero(t, nilSession.MajorAPIVersion())
	assert.Nil(t, nilSession.Metrics())

	empty := &Session{}
	assert.NotPanics(t, func() { empty.Disconnect(ctx) })
	assert.False(t, empty.SetTimeout(time.Second))
	assert.Equal(t, AboutInfo{}, empty.About())

	_, err := empty.Search(ctx, KindHost)
	var re *RetrievalError
	assert.ErrorAs(t, err, &re)
	assert.ErrorIs(t, err, errNotConnected)
}

func TestRelaxTrust(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	m := NewManager(log)
	assert.False(t, m.TrustRelaxed())

	m.RelaxTrust()

	assert.True(t, m.TrustRelaxed())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestConnectMalformedHostname(t *testing.T) {
	_, err := NewManager(nil).Connect(context.Background(), "root@vc01", "user", "pass")

	var ce *ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "root@vc01", ce.Host)
}

func TestConnect(t *testing.T) {
	simulator.Test(func(ctx context.Context, c *vim25.Client) {
		log, _ := logtest.NewNullLogger()
		m := NewManager(log)
		m.RelaxTrust()

		sess, err := m.Connect(ctx, c.URL().Host, "user", "pass")
		require.NoError(t, err)
		require.True(t, sess.Connected())

		_, hasPassword := sess.URL.User.Password()
		assert.False(t, hasPassword)
		assert.Equal(t, "/sdk", sess.URL.Path)

		assert.True(t, sess.SetTimeout(30*time.Second))
		assert.Equal(t, 30*time.Second, sess.Timeout)

		about := sess.About()
		assert.NotEmpty(t, about.APIType)
		assert.Greater(t, sess.MajorAPIVersion(), 3)

		sess.Disconnect(ctx)
		assert.False(t, sess.Connected())
		assert.Nil(t, sess.Tickets)
		assert.Nil(t, sess.Catalog)
	})
}

func TestConnectVerifiesCertificates(t *testing.T) {
	simulator.Test(func(ctx context.Context, c *vim25.Client) {
		_, err := NewManager(nil).Connect(ctx, c.URL().Host, "user", "pass")

		var ce *ConnectionError
		assert.ErrorAs(t, err, &ce)
	})
}

func TestConnectRejectsEmptyCredentials(t *testing.T) {
	simulator.Test(func(ctx context.Context, c *vim25.Client) {
		m := NewManager(nil)
		m.RelaxTrust()

		_, err := m.Connect(ctx, c.URL().Host, "", "")

		var ce *ConnectionError
		assert.ErrorAs(t, err, &ce)
	})
}
