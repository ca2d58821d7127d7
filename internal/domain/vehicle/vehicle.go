// Package vehicle 定义车辆身份、实时状态与远程命令模型，以及外部车辆注册表接口。
package vehicle

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Identity 车辆身份，所有入站报文都以此鉴别
type Identity struct {
	VIN       string `json:"vin"`
	TCUModel  string `json:"tcu_model"`
	TCUSerial string `json:"tcu_serial"`
	ICCID     string `json:"iccid"`
}

// Matches 四项身份字段必须全部精确一致
func (id Identity) Matches(other Identity) bool {
	return id.VIN == other.VIN &&
		id.TCUModel == other.TCUModel &&
		id.TCUSerial == other.TCUSerial &&
		id.ICCID == other.ICCID
}

// Owner 车主凭据
type Owner struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	Email        string `json:"email"`
}

// Verify 校验用户名与bcrypt密码哈希
func (o Owner) Verify(username, password string) bool {
	if o.Username == "" || o.PasswordHash == "" {
		return false
	}
	if !strings.EqualFold(o.Username, username) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(o.PasswordHash), []byte(password)) == nil
}

// HashPassword 生成bcrypt密码哈希
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// GPS 定位状态，经纬度为1/512角秒定点值
type GPS struct {
	Lat       int64     `json:"lat"`
	Lon       int64     `json:"lon"`
	Valid     bool      `json:"valid"`
	Home      bool      `json:"home"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Degrees 转换为十进制度
func (g GPS) Degrees() (lat, lon float64) {
	const unitsPerDegree = 3600 * 512
	return float64(g.Lat) / unitsPerDegree, float64(g.Lon) / unitsPerDegree
}

// EVState 电池与充电状态
type EVState struct {
	Charging      bool      `json:"charging"`
	Plugged       bool      `json:"plugged"`
	QuickCharging bool      `json:"quick_charging"`
	ClimateOn     bool      `json:"climate_on"`
	Gear          uint8     `json:"gear"`
	SOC           uint8     `json:"soc"`
	SOH           uint8     `json:"soh"`
	ChargeBars    uint8     `json:"charge_bars"`
	CapacityBars  uint8     `json:"capacity_bars"`
	RangeACOffKm  uint16    `json:"range_ac_off_km"`
	RangeACOnKm   uint16    `json:"range_ac_on_km"`
	FullIn100V    uint16    `json:"full_in_100v_min"`
	FullIn200V    uint16    `json:"full_in_200v_min"`
	FullInQuick   uint16    `json:"full_in_quick_min"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TCUConfig TCU网络配置
type TCUConfig struct {
	SoftwareVersion string    `json:"software_version"`
	DialCode        string    `json:"dial_code"`
	APN             string    `json:"apn"`
	APNUser         string    `json:"apn_user"`
	APNPassword     string    `json:"apn_password"`
	DNS1            string    `json:"dns1"`
	DNS2            string    `json:"dns2"`
	ServerURL       string    `json:"server_url"`
	ProxyURL        string    `json:"proxy_url"`
	ProxyPort       string    `json:"proxy_port"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CustomChannel 车主自定义的AutoDJ频道
type CustomChannel struct {
	Name  string  `json:"name"`
	Title string  `json:"title"`
	Body  string  `json:"body"`
	Phone string  `json:"phone"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
}

// Vehicle 注册表中的车辆记录
type Vehicle struct {
	Identity
	Owner          Owner           `json:"owner"`
	AuthDisabled   bool            `json:"auth_disabled"`
	GPS            GPS             `json:"gps"`
	EV             EVState         `json:"ev"`
	TCU            TCUConfig       `json:"tcu"`
	Command        *Command        `json:"command,omitempty"`
	CustomChannels []CustomChannel `json:"custom_channels,omitempty"`
}

// Clone 深拷贝，注册表对外只返回副本
func (v *Vehicle) Clone() *Vehicle {
	if v == nil {
		return nil
	}
	c := *v
	if v.Command != nil {
		cmd := *v.Command
		c.Command = &cmd
	}
	if v.CustomChannels != nil {
		c.CustomChannels = append([]CustomChannel(nil), v.CustomChannels...)
	}
	return &c
}
