//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tao-j/helvetic/internal/measurement"
	"github.com/tao-j/helvetic/internal/protocol"
)

const repoRootRel = ".."            // relative to ./e2e
const mainPkgRel = "./cmd/helvetic" // daemon entry point

const apiToken = "e2e-token"

func TestSmoke_UploadPublishAndRestart(t *testing.T) {
	repoRoot := repoRootPath(t)
	brokerHost, brokerPort := startMosquitto(t)

	messages := subscribe(t, brokerHost, brokerPort, "scales/e2e/measurement")

	bin := buildBinary(t, repoRoot)
	dataDir := t.TempDir()
	profilePath := filepath.Join(dataDir, "config.txt")
	if err := os.WriteFile(profilePath, []byte("deviceName=e2e\nuserName=\"Tess Ter\"\ngender=f\nage=40\nheight=1700\n"), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	storePath := filepath.Join(dataDir, "last_measurement.bin")

	addr := pickFreeAddr(t)
	env := append(os.Environ(),
		"APP_ENV=dev",
		"LOG_LEVEL=debug",
		"HTTP_ADDR="+addr,
		"STORE_DRIVER=file",
		"STORE_PATH="+storePath,
		"PROFILE_PATH="+profilePath,
		"BLE_ENABLED=false",
		"RTC_ENABLED=false",
		"MQTT_ENABLED=true",
		"MQTT_BROKER="+brokerHost,
		"MQTT_PORT="+brokerPort,
		"MQTT_CLIENT_ID=helvetic-e2e",
		"API_TOKENS="+apiToken,
	)

	client := &http.Client{Timeout: 2 * time.Second}
	base := "http://" + addr

	cmd := startServer(t, bin, env)
	waitForOK(t, client, base+"/healthz", 10*time.Second)

	resp := postUpload(t, client, base, uploadBody(t))
	if len(resp) != protocol.ResponseSize {
		t.Fatalf("response length=%d want=%d", len(resp), protocol.ResponseSize)
	}
	le := binary.LittleEndian
	if got, want := le.Uint16(resp[100:]), protocol.CRC16(resp[:100]); got != want {
		t.Fatalf("crc=%04X want=%04X", got, want)
	}
	if got := string(resp[31:39]); got != "Tess Ter" {
		t.Fatalf("user name=%q", got)
	}
	if got := le.Uint32(resp[51:]); got != 61000 {
		t.Fatalf("min tolerance=%d want=61000", got)
	}
	if resp[63] != byte(protocol.Female) {
		t.Fatalf("gender=%d want=0", resp[63])
	}

	select {
	case msg := <-messages:
		if msg.Device != "e2e" || msg.WeightKg != 65 || msg.Impedance != 500 {
			t.Fatalf("unexpected mqtt message: %+v", msg)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("no mqtt message received")
	}

	assertLatestWeight(t, client, base, 65)
	stopServer(t, cmd)

	info, err := os.Stat(storePath)
	if err != nil {
		t.Fatalf("store file: %v", err)
	}
	if info.Size() != measurement.RecordSize {
		t.Fatalf("store size=%d want=%d", info.Size(), measurement.RecordSize)
	}

	cmd = startServer(t, bin, env)
	waitForOK(t, client, base+"/healthz", 10*time.Second)
	assertLatestWeight(t, client, base, 65)
	stopServer(t, cmd)
}

func uploadBody(t *testing.T) []byte {
	t.Helper()
	u := protocol.Upload{
		Header: protocol.Header{
			ProtocolVersion:  3,
			BatteryPercent:   80,
			ScaleTimestamp:   1700000500,
			MeasurementCount: 1,
		},
		Blocks: []protocol.Block{{ID: 1, Impedance: 500, Weight: 65000, Timestamp: 1700000000, Fat1: 25000}},
	}
	b, err := u.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal upload: %v", err)
	}
	return b
}

func postUpload(t *testing.T, client *http.Client, base string, body []byte) []byte {
	t.Helper()
	resp, err := client.Post(base+"/scale/upload", "application/octet-stream", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /scale/upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status=%d want=%d", resp.StatusCode, http.StatusOK)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read upload response: %v", err)
	}
	return b
}

func assertLatestWeight(t *testing.T, client *http.Client, base string, want float64) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, base+"/api/v1/measurement", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+apiToken)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("GET /api/v1/measurement: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusOK)
	}
	var msg measurement.Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if msg.WeightKg != want {
		t.Fatalf("weight_kg=%v want=%v", msg.WeightKg, want)
	}
}

func startMosquitto(t *testing.T) (host, port string) {
	t.Helper()
	ctx := context.Background()

	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2",
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp").WithStartupTimeout(30 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start mosquitto container: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Terminate(ctx)
	})

	host, err = c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, nat.Port("1883/tcp"))
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	return host, mapped.Port()
}

func subscribe(t *testing.T, host, port, topic string) <-chan measurement.Message {
	t.Helper()

	out := make(chan measurement.Message, 4)
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%s", host, port)).
		SetClientID("helvetic-e2e-subscriber")
	client := mqtt.NewClient(opts)
	if token := client.Connect(); !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		t.Fatalf("subscriber connect: %v", token.Error())
	}
	t.Cleanup(func() { client.Disconnect(250) })

	token := client.Subscribe(topic, 1, func(_ mqtt.Client, m mqtt.Message) {
		var msg measurement.Message
		if err := json.Unmarshal(m.Payload(), &msg); err == nil {
			out <- msg
		}
	})
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		t.Fatalf("subscribe %s: %v", topic, token.Error())
	}
	return out
}

func repoRootPath(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	repo := filepath.Clean(filepath.Join(wd, repoRootRel))
	if _, err := os.Stat(filepath.Join(repo, "go.mod")); err != nil {
		t.Fatalf("repo root %q does not contain go.mod: %v", repo, err)
	}
	return repo
}

func buildBinary(t *testing.T, repoRoot string) string {
	t.Helper()

	out := filepath.Join(t.TempDir(), "helvetic")
	build := exec.Command("go", "build", "-o", out, mainPkgRel)
	build.Dir = repoRoot
	build.Env = os.Environ()

	if b, err := build.CombinedOutput(); err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(b))
	}
	return out
}

func startServer(t *testing.T, bin string, env []string) *exec.Cmd {
	t.Helper()

	cmd := exec.Command(bin)
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() {
		if cmd.ProcessState == nil {
			_ = cmd.Process.Kill()
			_, _ = cmd.Process.Wait()
		}
	})
	return cmd
}

func pickFreeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen :0: %v", err)
	}
	defer ln.Close()

	return ln.Addr().String()
}

func waitForOK(t *testing.T, client *http.Client, url string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server not healthy after %s: %s", timeout, url)
}

func stopServer(t *testing.T, cmd *exec.Cmd) {
	t.Helper()

	_ = cmd.Process.Signal(syscall.SIGTERM)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		t.Fatalf("server did not exit in time")
	case err := <-done:
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				t.Fatalf("server exited non-zero: %v", err)
			}
			t.Fatalf("server wait error: %v", err)
		}
	}
}
