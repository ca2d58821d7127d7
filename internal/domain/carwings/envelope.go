// Package carwings 定义CARWINGS信封协议的XML结构、上传文件格式与充电桩目录模型。
package carwings

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/bujia-iot/carwings-gateway/pkg/errors"
)

// 应用名
const (
	AppAuth     = "AP"
	AppAutoDJ   = "DJ"
	AppCharger  = "CP"
	AppPI       = "PI"
	AppGLS      = "GLS"
	ResponseXML = "response.xml"
	// ProtocolVersion 响应XML的version属性，请求未携带时使用
	ProtocolVersion = "2.2"
)

// maxXMLSize 请求XML上限
const maxXMLSize = 64 * 1024

// Request 请求XML
type Request struct {
	XMLName   xml.Name       `xml:"carwings"`
	Version   string         `xml:"version,attr"`
	Auth      AuthInfo       `xml:"aut_inf"`
	Base      *BaseInfo      `xml:"bs_inf"`
	Service   ServiceInfo    `xml:"sr_inf"`
	Operation *OperationInfo `xml:"op_inf"`
}

// AuthInfo 认证块
type AuthInfo struct {
	NaviID   string `xml:"navi_id"`
	Tel      string `xml:"tel"`
	DCMID    string `xml:"dcm_id"`
	SIMID    string `xml:"sim_id"`
	VIN      string `xml:"vin"`
	UserID   string `xml:"user_id"`
	Password string `xml:"password"`
}

// BaseInfo 基础信息块
type BaseInfo struct {
	Software SoftwareVersion `xml:"sftwr_ver"`
	Vehicle  VehicleInfo     `xml:"vcl"`
	Navi     NaviSettings    `xml:"navi_set"`
}

type SoftwareVersion struct {
	Navi string `xml:"navi"`
	Map  string `xml:"map"`
	DCM  string `xml:"dcm"`
}

type VehicleInfo struct {
	Coordinate *Coordinate `xml:"coordinate"`
	Odometer   string      `xml:"odometer"`
	SOC        string      `xml:"soc"`
}

// Coordinate 车机上报坐标，经纬度为十进制度
type Coordinate struct {
	Datum     string `xml:"datum,attr"`
	Latitude  string `xml:"latitude"`
	Longitude string `xml:"longitude"`
}

// Degrees 解析经纬度，缺失或越界时ok为false
func (c *Coordinate) Degrees() (lat, lon float64, ok bool) {
	if c == nil {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(c.Latitude), 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(c.Longitude), 64)
	if err != nil {
		return 0, 0, false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false
	}
	return lat, lon, true
}

type NaviSettings struct {
	TimeZone     string `xml:"time_zone"`
	Language     string `xml:"language"`
	DistanceUnit string `xml:"distance_unit"`
}

// ServiceInfo 服务信息块，请求中必须恰好有一个app
type ServiceInfo struct {
	Apps []App `xml:"app"`
}

type App struct {
	Name string `xml:"name,attr"`
}

type OperationInfo struct {
	Timing string `xml:"timing"`
}

// AppName 请求的应用名
func (r *Request) AppName() string {
	if len(r.Service.Apps) == 0 {
		return ""
	}
	return r.Service.Apps[0].Name
}

// Position 车机上报的位置
func (r *Request) Position() (lat, lon float64, ok bool) {
	if r.Base == nil {
		return 0, 0, false
	}
	return r.Base.Vehicle.Coordinate.Degrees()
}

// ParseRequest 解析并校验请求XML
func ParseRequest(data []byte) (*Request, error) {
	if len(data) == 0 {
		return nil, errors.New(errors.ErrMalformedInput, "empty request xml")
	}
	if len(data) > maxXMLSize {
		return nil, errors.Newf(errors.ErrMalformedInput, "request xml too large: %d", len(data))
	}

	var req Request
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true
	if err := dec.Decode(&req); err != nil {
		return nil, errors.Wrap(errors.ErrMalformedInput, "decode request xml", err)
	}
	if req.XMLName.Local != "carwings" {
		return nil, errors.Newf(errors.ErrMalformedInput, "unexpected root element %q", req.XMLName.Local)
	}
	if n := len(req.Service.Apps); n != 1 {
		return nil, errors.Newf(errors.ErrMalformedInput, "sr_inf must name exactly one app, got %d", n)
	}
	if strings.TrimSpace(req.Service.Apps[0].Name) == "" {
		return nil, errors.New(errors.ErrMalformedInput, "empty app name")
	}
	return &req, nil
}

// Response 响应XML
type Response struct {
	XMLName   xml.Name      `xml:"carwings"`
	Version   string        `xml:"version,attr"`
	Service   ServiceInfo   `xml:"sr_inf"`
	Operation OperationInfo `xml:"op_inf"`
}

// NewResponse 以请求的应用名与时间提示构造响应
func NewResponse(version, app string, timingSeconds int) *Response {
	if version == "" {
		version = ProtocolVersion
	}
	return &Response{
		Version:   version,
		Service:   ServiceInfo{Apps: []App{{Name: app}}},
		Operation: OperationInfo{Timing: strconv.Itoa(timingSeconds)},
	}
}

// Marshal 编码为带XML声明的文档
func (r *Response) Marshal() ([]byte, error) {
	body, err := xml.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(errors.ErrEncodeConstraint, "encode response xml", err)
	}
	out := make([]byte, 0, len(xml.Header)+len(body))
	out = append(out, xml.Header...)
	return append(out, body...), nil
}
