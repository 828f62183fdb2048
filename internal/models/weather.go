package models

// Модели OpenWeatherMap /forecast (шаг 3 часа). Поля зеркалят ответ провайдера.

type WeatherMain struct {
	Temp      float64 `json:"temp"       yaml:"temp"`
	FeelsLike float64 `json:"feels_like" yaml:"feels_like"`
	TempMin   float64 `json:"temp_min"   yaml:"temp_min"`
	TempMax   float64 `json:"temp_max"   yaml:"temp_max"`
	Pressure  float64 `json:"pressure"   yaml:"pressure"`
	Humidity  float64 `json:"humidity"   yaml:"humidity"`
}

type WeatherCondition struct {
	ID          int    `json:"id"          yaml:"id"`
	Main        string `json:"main"        yaml:"main"`
	Description string `json:"description" yaml:"description"`
	Icon        string `json:"icon"        yaml:"icon"`
}

type WeatherWind struct {
	Speed float64 `json:"speed" yaml:"speed"`
	Deg   float64 `json:"deg"   yaml:"deg"`
	Gust  float64 `json:"gust"  yaml:"gust"`
}

type WeatherClouds struct {
	All int `json:"all" yaml:"all"`
}

type WeatherRain struct {
	ThreeHours float64 `json:"3h" yaml:"3h"`
}

type WeatherForecast struct {
	Dt         int64              `json:"dt"             yaml:"dt"`
	Main       WeatherMain        `json:"main"           yaml:"main"`
	Weather    []WeatherCondition `json:"weather"        yaml:"weather"`
	Clouds     WeatherClouds      `json:"clouds"         yaml:"clouds"`
	Wind       WeatherWind        `json:"wind"           yaml:"wind"`
	Visibility int                `json:"visibility"     yaml:"visibility"`
	Pop        float64            `json:"pop"            yaml:"pop"`
	Rain       *WeatherRain       `json:"rain,omitempty" yaml:"rain,omitempty"`
	DtTxt      string             `json:"dt_txt"         yaml:"dt_txt"`
}

type WeatherCity struct {
	Name    string `json:"name"    yaml:"name"`
	Country string `json:"country" yaml:"country"`
	Sunrise int64  `json:"sunrise" yaml:"sunrise"`
	Sunset  int64  `json:"sunset"  yaml:"sunset"`
}

// WeatherData - город и список прогнозов.
type WeatherData struct {
	City WeatherCity       `json:"city" yaml:"city"`
	List []WeatherForecast `json:"list" yaml:"list"`
}
