// gdc-simulator 模拟一台TCU连接GDC端口：发送INIT，按响应中的命令回送结果帧，再定期上报状态。
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/bujia-iot/carwings-gateway/internal/domain/gdc_protocol"
	"github.com/bujia-iot/carwings-gateway/internal/domain/vehicle"
)

type options struct {
	addr      string
	vin       string
	tcuModel  string
	tcuSerial string
	iccid     string
	username  string
	password  string
	soc       uint
	reports   int
	interval  time.Duration
	fail      bool
}

func main() {
	opts := options{}
	flag.StringVar(&opts.addr, "addr", "localhost:55230", "GDC服务地址")
	flag.StringVar(&opts.vin, "vin", "SJNFAAZE0U6000001", "车辆VIN")
	flag.StringVar(&opts.tcuModel, "tcu-model", "TCU-LEAF", "TCU型号")
	flag.StringVar(&opts.tcuSerial, "tcu-serial", "SN00000001", "TCU序列号")
	flag.StringVar(&opts.iccid, "iccid", "89860044816187006481", "SIM卡ICCID")
	flag.StringVar(&opts.username, "username", "", "车主用户名")
	flag.StringVar(&opts.password, "password", "", "车主密码")
	flag.UintVar(&opts.soc, "soc", 80, "上报的SOC百分比")
	flag.IntVar(&opts.reports, "reports", 3, "状态上报次数")
	flag.DurationVar(&opts.interval, "interval", 2*time.Second, "状态上报间隔")
	flag.BoolVar(&opts.fail, "fail", false, "命令结果上报为失败")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "模拟失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("模拟车辆连接完成")
}

func run(opts options) error {
	conn, err := net.Dial("tcp", opts.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", opts.addr, err)
	}
	defer conn.Close()
	fmt.Printf("已连接到服务器: %s\n", conn.RemoteAddr())

	fb := gdc_protocol.FrameBuilder{
		Identity: vehicle.Identity{
			VIN:       opts.vin,
			TCUModel:  opts.tcuModel,
			TCUSerial: opts.tcuSerial,
			ICCID:     opts.iccid,
		},
		SoftwareVersion: "SIM0001",
		Username:        opts.username,
		Password:        opts.password,
	}
	gps := &gdc_protocol.GPSFix{Lat: 35 * 3600 * 512, Lon: 139 * 3600 * 512, Valid: true}
	ev := vehicle.EVState{SOC: uint8(opts.soc), SOH: 95, ChargeBars: 9, CapacityBars: 12, RangeACOffKm: 120, RangeACOnKm: 100}

	resp, err := exchange(conn, fb.Init(gps))
	if err != nil {
		return fmt.Errorf("send init: %w", err)
	}
	fmt.Printf("INIT响应: %02X\n", resp)
	if resp[1] != gdc_protocol.StatusSuccess {
		return fmt.Errorf("init rejected")
	}

	cmd := vehicle.CommandType(resp[2])
	if frame, ok := resultFrame(fb, gps, ev, cmd, opts.fail); ok {
		resp, err := exchange(conn, frame)
		if err != nil {
			return fmt.Errorf("send command result: %w", err)
		}
		fmt.Printf("命令 %s 结果已上报，响应: %02X\n", cmd, resp)
	}

	for i := 0; i < opts.reports; i++ {
		time.Sleep(opts.interval)
		resp, err := exchange(conn, fb.Data(gdc_protocol.BodyStatus, gps, ev, 0))
		if err != nil {
			return fmt.Errorf("send status #%d: %w", i+1, err)
		}
		fmt.Printf("状态上报 #%d 响应: %02X\n", i+1, resp)
	}
	return nil
}

// exchange 发送一帧并读取定长响应
func exchange(conn net.Conn, frame []byte) ([]byte, error) {
	if _, err := conn.Write(frame); err != nil {
		return nil, err
	}
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return nil, err
	}
	resp := make([]byte, gdc_protocol.ResponseLen)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// resultFrame INIT响应携带命令时应回送的DATA帧
func resultFrame(fb gdc_protocol.FrameBuilder, gps *gdc_protocol.GPSFix, ev vehicle.EVState, cmd vehicle.CommandType, fail bool) ([]byte, bool) {
	var result byte
	if fail {
		result = 1
	}
	switch cmd {
	case vehicle.CommandRefresh, vehicle.CommandLocate:
		return fb.Data(gdc_protocol.BodyStatus, gps, ev, 0), true
	case vehicle.CommandACOn:
		ev.ClimateOn = !fail
		return fb.Data(gdc_protocol.BodyACResult, gps, ev, result), true
	case vehicle.CommandACOff:
		return fb.Data(gdc_protocol.BodyRemoteStop, gps, ev, result), true
	case vehicle.CommandChargeStart:
		ev.Charging = !fail
		ev.Plugged = true
		return fb.Data(gdc_protocol.BodyChargeResult, gps, ev, result), true
	}
	return nil, false
}
